package mapping

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type book struct {
	ID        int64  `tuple:"id,id"`
	UniqueKey string `tuple:"unique_key"`
	Name      string
	Author    string `tuple:",nullable"`
	Year      int
	Cached    string `tuple:"-"`
	internal  int
}

type shelved struct {
	Code  string
	Label string `tuple:"label,pos=0"`
	ID    int    `tuple:",pos=1"`
}

func (shelved) SpaceName() string { return "shelf" }

type audit struct {
	Created time.Time
	By      string
}

type withEmbedded struct {
	audit
	ID int
}

type noIdentity struct {
	Name string
}

type twoIdentities struct {
	A int `tuple:",id"`
	B int `tuple:",id"`
}

type duplicatePosition struct {
	ID   int    `tuple:",pos=0"`
	Name string `tuple:",pos=0"`
}

type gapPosition struct {
	ID   int    `tuple:",pos=0"`
	Name string `tuple:",pos=2"`
}

type unreachable struct {
	ID int
	Ch chan int
}

type badTag struct {
	ID int `tuple:",primary"`
}

type embeddedPtr struct {
	*audit
	ID int
}

func TestMetadataFor_Book(t *testing.T) {
	cache := NewCache(convert.NewDefaultRegistry())
	meta, err := cache.MetadataFor(reflect.TypeFor[book]())
	require.NoError(t, err)

	assert.Equal(t, "book", meta.SpaceName)
	require.Len(t, meta.Fields, 5)

	names := make([]string, len(meta.Fields))
	for i, f := range meta.Fields {
		names[i] = f.Name
		assert.Equal(t, i, f.Position)
	}
	assert.Equal(t, []string{"id", "unique_key", "name", "author", "year"}, names)

	assert.Equal(t, "ID", meta.Identity().GoName)
	assert.Equal(t, []int{0}, meta.KeyFields())
	assert.True(t, meta.Fields[3].Nullable)

	f, ok := meta.Field("uniquekey")
	require.True(t, ok)
	assert.Equal(t, "UniqueKey", f.GoName)
	f, ok = meta.Field("unique_key")
	require.True(t, ok)
	assert.Equal(t, 1, f.Position)
	_, ok = meta.Field("cached")
	assert.False(t, ok)
}

func TestMetadataFor_ExplicitPositionsAndSpaceName(t *testing.T) {
	cache := NewCache(convert.NewDefaultRegistry())
	meta, err := cache.MetadataFor(reflect.TypeFor[*shelved]())
	require.NoError(t, err)

	assert.Equal(t, "shelf", meta.SpaceName)
	assert.Equal(t, "label", meta.Fields[0].Name)
	assert.Equal(t, "ID", meta.Fields[1].GoName)
	assert.Equal(t, "Code", meta.Fields[2].GoName)
	assert.Equal(t, "ID", meta.Identity().GoName)
}

func TestMetadataFor_PromotedFields(t *testing.T) {
	cache := NewCache(convert.NewDefaultRegistry())
	meta, err := cache.MetadataFor(reflect.TypeFor[withEmbedded]())
	require.NoError(t, err)

	require.Len(t, meta.Fields, 3)
	assert.Equal(t, "Created", meta.Fields[0].GoName)
	assert.Equal(t, "By", meta.Fields[1].GoName)
	assert.Equal(t, "with_embedded", meta.SpaceName)
}

func TestMetadataFor_Invalid(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"not a struct", reflect.TypeFor[int]()},
		{"no identity", reflect.TypeFor[noIdentity]()},
		{"two identities", reflect.TypeFor[twoIdentities]()},
		{"duplicate position", reflect.TypeFor[duplicatePosition]()},
		{"gap in positions", reflect.TypeFor[gapPosition]()},
		{"unreachable field", reflect.TypeFor[unreachable]()},
		{"unknown tag option", reflect.TypeFor[badTag]()},
		{"embedded pointer", reflect.TypeFor[embeddedPtr]()},
	}

	cache := NewCache(convert.NewDefaultRegistry())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cache.MetadataFor(tt.typ)
			assert.ErrorIs(t, err, core.ErrInvalidEntityMapping)
		})
	}
}

func TestMetadataFor_FailureIsPermanent(t *testing.T) {
	cache := NewCache(convert.NewDefaultRegistry())
	_, first := cache.MetadataFor(reflect.TypeFor[noIdentity]())
	_, second := cache.MetadataFor(reflect.TypeFor[noIdentity]())
	require.Error(t, first)
	assert.Same(t, first, second)
}

func TestMetadataFor_ConcurrentFirstAccessBuildsOnce(t *testing.T) {
	cache := NewCache(convert.NewDefaultRegistry())

	const workers = 32
	results := make([]*EntityMetadata, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := cache.MetadataFor(reflect.TypeFor[book]())
			assert.NoError(t, err)
			results[i] = meta
		}(i)
	}
	wg.Wait()

	for _, meta := range results {
		assert.Same(t, results[0], meta)
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		raw     string
		want    fieldTag
		wantErr bool
	}{
		{"", fieldTag{position: -1}, false},
		{"-", fieldTag{position: -1, skip: true}, false},
		{"name", fieldTag{name: "name", position: -1}, false},
		{"id,id", fieldTag{name: "id", position: -1, identity: true}, false},
		{",pos=3,nullable", fieldTag{position: 3, nullable: true}, false},
		{",pos=x", fieldTag{}, true},
		{",pos=-1", fieldTag{}, true},
		{",unique", fieldTag{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseTag(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"UniqueKey":  "unique_key",
		"ID":         "id",
		"HTTPServer": "http_server",
		"Year":       "year",
		"Book2Shelf": "book2_shelf",
		"doubleVal":  "double_val",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}
