package mapping

import (
	"reflect"
	"sync"

	"github.com/poiesic/tuplerepo/convert"
)

// Cache builds entity metadata at most once per type.
//
// Concurrent first accesses for the same type converge on a single build;
// different types build independently. A failed build is cached too, so a
// malformed entity fails the same way every time.
type Cache struct {
	registry *convert.Registry
	entries  sync.Map // reflect.Type -> *cacheEntry
}

type cacheEntry struct {
	once sync.Once
	meta *EntityMetadata
	err  error
}

// NewCache creates a cache that checks field types against reg.
func NewCache(reg *convert.Registry) *Cache {
	if reg == nil {
		reg = convert.Default()
	}
	return &Cache{registry: reg}
}

var (
	defaultCache     *Cache
	defaultCacheOnce sync.Once
)

// DefaultCache returns the process-wide cache bound to convert.Default().
func DefaultCache() *Cache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewCache(convert.Default())
	})
	return defaultCache
}

// MetadataFor returns metadata for t from the process-wide cache.
func MetadataFor(t reflect.Type) (*EntityMetadata, error) {
	return DefaultCache().MetadataFor(t)
}

// Registry returns the converter registry the cache validates against.
func (c *Cache) Registry() *convert.Registry {
	return c.registry
}

// MetadataFor returns metadata for t. Pointer types resolve to their element.
func (c *Cache) MetadataFor(t reflect.Type) (*EntityMetadata, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	v, ok := c.entries.Load(t)
	if !ok {
		v, _ = c.entries.LoadOrStore(t, &cacheEntry{})
	}
	entry := v.(*cacheEntry)
	entry.once.Do(func() {
		entry.meta, entry.err = buildMetadata(t, c.registry)
	})
	return entry.meta, entry.err
}
