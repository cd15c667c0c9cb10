// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package mapping

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/core"
)

var (
	// ErrNilEntity is returned when a nil entity pointer is mapped.
	ErrNilEntity = errors.New("nil entity")
)

// Mapper converts entities to tuples and back using cached metadata.
type Mapper struct {
	cache    *Cache
	registry *convert.Registry
}

// NewMapper creates a mapper over cache. A nil cache means DefaultCache().
func NewMapper(cache *Cache) *Mapper {
	if cache == nil {
		cache = DefaultCache()
	}
	return &Mapper{cache: cache, registry: cache.Registry()}
}

// Cache returns the metadata cache behind the mapper.
func (m *Mapper) Cache() *Cache {
	return m.cache
}

// Registry returns the converter registry behind the mapper.
func (m *Mapper) Registry() *convert.Registry {
	return m.registry
}

// ToTuple converts an entity (struct value or pointer) to a tuple in field
// position order.
func (m *Mapper) ToTuple(entity any) (core.Tuple, error) {
	rv, meta, err := m.entityValue(entity)
	if err != nil {
		return nil, err
	}
	out := make(core.Tuple, len(meta.Fields))
	for i, f := range meta.Fields {
		cell, err := m.registry.ToStore(f.ValueOf(rv).Interface(), f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.GoName, err)
		}
		out[i] = cell
	}
	return out, nil
}

// FromTuple builds a value of typ, a struct or pointer-to-struct entity type,
// from t. Cells missing from a short tuple count as nil.
func (m *Mapper) FromTuple(t core.Tuple, typ reflect.Type) (reflect.Value, error) {
	base, isPtr := deref(typ)
	meta, err := m.cache.MetadataFor(base)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(base)
	for _, f := range meta.Fields {
		v, err := m.decodeCell(t.Field(f.Position), f.Type, f.Nullable)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s.%s: %w", base.Name(), f.GoName, err)
		}
		f.ValueOf(out.Elem()).Set(v)
	}
	if isPtr {
		return out, nil
	}
	return out.Elem(), nil
}

// KeyOf returns the primary key tuple of entity.
func (m *Mapper) KeyOf(entity any) (core.Tuple, error) {
	rv, meta, err := m.entityValue(entity)
	if err != nil {
		return nil, err
	}
	id := meta.Identity()
	return m.KeyFromID(meta, id.ValueOf(rv).Interface())
}

// KeyFromID builds the primary key tuple for an identity value.
func (m *Mapper) KeyFromID(meta *EntityMetadata, id any) (core.Tuple, error) {
	cell, err := m.registry.ToStore(id, meta.Identity().Type)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", meta.Identity().GoName, err)
	}
	key := core.Tuple{cell}
	if err := core.ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Project shapes raw tuples into target, the declared result type of a
// procedure call.
//
// A slice target receives one element per tuple, except when a converter
// claims the slice type itself ([]byte for instance). A slice of scalars
// over a single tuple receives one element per cell instead, so a procedure
// may return its sequence either as one list or as several values. Other
// targets take the first tuple, or the zero value when there is none. Each
// element is then an entity when its struct type maps as one, a scalar when
// a converter claims it or it is not a struct, and otherwise a value object
// filled positionally from its exported fields. A scalar built from a tuple
// of more than one cell fails with core.ErrUnsupportedConversion.
func (m *Mapper) Project(tuples []core.Tuple, target reflect.Type) (reflect.Value, error) {
	if target.Kind() == reflect.Slice && !m.registry.Claims(target) {
		if len(tuples) == 1 && m.scalar(target.Elem()) {
			return m.projectCells(tuples[0], target)
		}
		out := reflect.MakeSlice(target, len(tuples), len(tuples))
		for i, t := range tuples {
			v, err := m.projectOne(t, target.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("tuple %d: %w", i, err)
			}
			out.Index(i).Set(v)
		}
		return out, nil
	}
	if len(tuples) == 0 {
		return reflect.Zero(target), nil
	}
	return m.projectOne(tuples[0], target)
}

func (m *Mapper) projectCells(t core.Tuple, target reflect.Type) (reflect.Value, error) {
	out := reflect.MakeSlice(target, len(t), len(t))
	for i, cell := range t {
		v, err := m.decodeCell(cell, target.Elem(), false)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cell %d: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

// scalar reports whether values of typ come from a single cell.
func (m *Mapper) scalar(typ reflect.Type) bool {
	base, _ := deref(typ)
	return base.Kind() != reflect.Struct || m.registry.Claims(base)
}

func (m *Mapper) projectOne(t core.Tuple, typ reflect.Type) (reflect.Value, error) {
	base, isPtr := deref(typ)
	if m.scalar(typ) {
		if len(t) > 1 {
			return reflect.Value{}, fmt.Errorf("%w: %d cells for scalar %s", core.ErrUnsupportedConversion, len(t), typ)
		}
		return m.decodeCell(t.Field(0), typ, false)
	}
	if _, err := m.cache.MetadataFor(base); err == nil {
		return m.FromTuple(t, typ)
	}

	out := reflect.New(base)
	pos := 0
	for _, sf := range reflect.VisibleFields(base) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		v, err := m.decodeCell(t.Field(pos), sf.Type, false)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s.%s: %w", base.Name(), sf.Name, err)
		}
		out.Elem().FieldByIndex(sf.Index).Set(v)
		pos++
	}
	if isPtr {
		return out, nil
	}
	return out.Elem(), nil
}

func (m *Mapper) decodeCell(cell any, typ reflect.Type, nullable bool) (reflect.Value, error) {
	if cell == nil && nullable && !m.registry.Nullable(typ) {
		return reflect.Zero(typ), nil
	}
	return m.registry.FromStore(cell, typ)
}

func (m *Mapper) entityValue(entity any) (reflect.Value, *EntityMetadata, error) {
	rv := reflect.ValueOf(entity)
	if !rv.IsValid() {
		return reflect.Value{}, nil, ErrNilEntity
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, nil, fmt.Errorf("%w: %s", ErrNilEntity, rv.Type())
		}
		rv = rv.Elem()
	}
	meta, err := m.cache.MetadataFor(rv.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return rv, meta, nil
}

// Encode converts an entity to its tuple.
func Encode[T any](m *Mapper, entity *T) (core.Tuple, error) {
	return m.ToTuple(entity)
}

// Decode builds a *T from t.
func Decode[T any](m *Mapper, t core.Tuple) (*T, error) {
	v, err := m.FromTuple(t, reflect.TypeFor[*T]())
	if err != nil {
		return nil, err
	}
	return v.Interface().(*T), nil
}

func deref(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Pointer {
		return t.Elem(), true
	}
	return t, false
}
