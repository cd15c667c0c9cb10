package storage

import (
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/poiesic/tuplerepo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		want   int
		wantOK bool
	}{
		{"ints", int64(1), int64(2), -1, true},
		{"int vs uint", int64(5), uint64(5), 0, true},
		{"negative int vs uint", int64(-1), uint64(0), -1, true},
		{"uint vs negative int", uint64(0), int64(-1), 1, true},
		{"int vs double", int64(2), 1.5, 1, true},
		{"strings", "a", "b", -1, true},
		{"bools", false, true, -1, true},
		{"binary", []byte{1}, []byte{1}, 0, true},
		{"nils", nil, nil, 0, true},
		{"string vs int", "1", int64(1), 0, false},
		{"nil vs int", nil, int64(1), 0, false},
		{"arrays", []any{}, []any{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPredicate_Matches(t *testing.T) {
	book := core.Tuple{int64(1), "k1", "Dune", "Herbert", int64(1965)}

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"all", All, true},
		{"eq", Predicate{{Field: 2, Op: OpEq, Value: "Dune"}}, true},
		{"ne", Predicate{{Field: 2, Op: OpNe, Value: "Dune"}}, false},
		{"gt", Predicate{{Field: 4, Op: OpGt, Value: int64(1960)}}, true},
		{"ge equal", Predicate{{Field: 4, Op: OpGe, Value: int64(1965)}}, true},
		{"lt", Predicate{{Field: 4, Op: OpLt, Value: int64(1965)}}, false},
		{"le", Predicate{{Field: 4, Op: OpLe, Value: 1965.0}}, true},
		{"and", Predicate{
			{Field: 2, Op: OpEq, Value: "Dune"},
			{Field: 4, Op: OpGt, Value: int64(2000)},
		}, false},
		{"missing field is nil", Predicate{{Field: 9, Op: OpEq, Value: "x"}}, false},
		{"incomparable ne", Predicate{{Field: 2, Op: OpNe, Value: int64(1)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Matches(book))
		})
	}
}

func TestPredicate_Validate(t *testing.T) {
	require.NoError(t, Predicate{{Field: 0, Op: OpEq, Value: int64(1)}}.Validate())
	require.NoError(t, All.Validate())

	assert.ErrorIs(t, Predicate{{Field: -1, Op: OpEq, Value: int64(1)}}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Predicate{{Field: 0, Op: Op(42), Value: int64(1)}}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Predicate{{Field: 0, Op: OpEq, Value: []any{}}}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Predicate{{Field: 0, Op: OpEq, Value: 3}}.Validate(), ErrInvalidQuery)
}

func TestPredicate_String(t *testing.T) {
	assert.Equal(t, "all", All.String())
	p := Predicate{{Field: 4, Op: OpGt, Value: int64(1960)}, {Field: 2, Op: OpEq, Value: "Dune"}}
	assert.Equal(t, "[4] > 1960 and [2] == Dune", p.String())
}

func TestMarshalKey_PreservesOrder(t *testing.T) {
	keys := []core.Tuple{
		{false},
		{true},
		{int64(math.MinInt64)},
		{int64(-10)},
		{int64(-1)},
		{int64(0)},
		{uint64(3)},
		{int64(10)},
		{uint64(math.MaxUint64)},
		{math.Inf(-1)},
		{-2.5},
		{0.0},
		{1.5},
		{math.Inf(1)},
		{""},
		{"a"},
		{"a\x00"},
		{"a\x00b"},
		{"ab"},
		{"b"},
		{[]byte{0x00}},
		{[]byte{0x01}},
	}

	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		var err error
		encoded[i], err = MarshalKey(k)
		require.NoError(t, err, "key %v", k)
	}
	assert.True(t, slices.IsSortedFunc(encoded, bytes.Compare))
}

func TestMarshalKey_Composite(t *testing.T) {
	a, err := MarshalKey(core.Tuple{"ab", int64(1)})
	require.NoError(t, err)
	b, err := MarshalKey(core.Tuple{"a", int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Compare(a, b))

	intKey, err := MarshalKey(core.Tuple{int64(7)})
	require.NoError(t, err)
	uintKey, err := MarshalKey(core.Tuple{uint64(7)})
	require.NoError(t, err)
	assert.Equal(t, intKey, uintKey)
}

func TestMarshalKey_Invalid(t *testing.T) {
	_, err := MarshalKey(core.Tuple{})
	assert.ErrorIs(t, err, core.ErrInvalidTuple)
	_, err = MarshalKey(core.Tuple{nil})
	assert.ErrorIs(t, err, core.ErrInvalidTuple)
	_, err = MarshalKey(core.Tuple{[]any{int64(1)}})
	assert.ErrorIs(t, err, core.ErrInvalidTuple)
}

func TestKeyOf(t *testing.T) {
	key, err := KeyOf(core.Tuple{int64(1), "a", "b"}, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, core.Tuple{"b", int64(1)}, key)

	_, err = KeyOf(core.Tuple{int64(1)}, []int{3})
	assert.ErrorIs(t, err, core.ErrInvalidTuple)
}
