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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/core"
)

// Spaced lets an entity type choose its space name.
// Without it the space is the snake_case type name.
type Spaced interface {
	SpaceName() string
}

// FieldDescriptor describes one mapped struct field.
type FieldDescriptor struct {
	Name     string       // tuple-side name
	GoName   string       // struct field name
	Position int          // tuple position, contiguous from 0
	Type     reflect.Type // declared Go type
	Identity bool
	Nullable bool

	index []int
}

// ValueOf returns the field of a struct value of the entity type.
func (f FieldDescriptor) ValueOf(entity reflect.Value) reflect.Value {
	return entity.FieldByIndex(f.index)
}

// EntityMetadata describes how one entity type maps onto a space.
// It is immutable once built.
type EntityMetadata struct {
	Type      reflect.Type
	SpaceName string
	Fields    []FieldDescriptor // ordered by Position

	identity int
}

// Identity returns the identity field.
func (m *EntityMetadata) Identity() FieldDescriptor {
	return m.Fields[m.identity]
}

// KeyFields returns the tuple positions forming the primary key.
func (m *EntityMetadata) KeyFields() []int {
	return []int{m.Fields[m.identity].Position}
}

// Field finds a field by Go name or tuple name, ignoring case.
func (m *EntityMetadata) Field(name string) (FieldDescriptor, bool) {
	for _, f := range m.Fields {
		if strings.EqualFold(f.GoName, name) || strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// buildMetadata inspects t once. Every failure is a static programming
// error and is reported as core.ErrInvalidEntityMapping.
func buildMetadata(t reflect.Type, reg *convert.Registry) (*EntityMetadata, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", core.ErrInvalidEntityMapping, t)
	}

	meta := &EntityMetadata{
		Type:      t,
		SpaceName: spaceName(t),
		identity:  -1,
	}

	explicit := false
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		if len(sf.Index) > 1 && embeddedThroughPointer(t, sf.Index) {
			return nil, fmt.Errorf("%w: %s.%s is promoted through an embedded pointer",
				core.ErrInvalidEntityMapping, t, sf.Name)
		}
		tag, err := parseTag(sf.Tag.Get(tagName))
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", core.ErrInvalidEntityMapping, t, sf.Name, err)
		}
		if tag.skip {
			continue
		}
		if !reg.Reachable(sf.Type) {
			return nil, fmt.Errorf("%w: %s.%s: no converter for %s",
				core.ErrInvalidEntityMapping, t, sf.Name, sf.Type)
		}

		name := tag.name
		if name == "" {
			name = snakeCase(sf.Name)
		}
		if tag.identity {
			explicit = true
		}
		meta.Fields = append(meta.Fields, FieldDescriptor{
			Name:     name,
			GoName:   sf.Name,
			Position: tag.position,
			Type:     sf.Type,
			Identity: tag.identity,
			Nullable: tag.nullable,
			index:    sf.Index,
		})
	}

	if len(meta.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no mapped fields", core.ErrInvalidEntityMapping, t)
	}

	placePositions(meta.Fields)

	if !explicit {
		for i := range meta.Fields {
			if meta.Fields[i].GoName == "ID" || meta.Fields[i].GoName == "Id" {
				meta.Fields[i].Identity = true
				break
			}
		}
	}

	sort.SliceStable(meta.Fields, func(i, j int) bool {
		return meta.Fields[i].Position < meta.Fields[j].Position
	})

	names := make(map[string]string, len(meta.Fields))
	for i, f := range meta.Fields {
		if f.Position != i {
			if i > 0 && meta.Fields[i-1].Position == f.Position {
				return nil, fmt.Errorf("%w: %s: fields %s and %s share position %d",
					core.ErrInvalidEntityMapping, t, meta.Fields[i-1].GoName, f.GoName, f.Position)
			}
			return nil, fmt.Errorf("%w: %s: positions are not contiguous at %d",
				core.ErrInvalidEntityMapping, t, i)
		}
		if other, ok := names[f.Name]; ok {
			return nil, fmt.Errorf("%w: %s: fields %s and %s share name %q",
				core.ErrInvalidEntityMapping, t, other, f.GoName, f.Name)
		}
		names[f.Name] = f.GoName
		if f.Identity {
			if meta.identity >= 0 {
				return nil, fmt.Errorf("%w: %s has more than one identity field",
					core.ErrInvalidEntityMapping, t)
			}
			meta.identity = i
		}
	}

	if meta.identity < 0 {
		return nil, fmt.Errorf("%w: %s has no identity field", core.ErrInvalidEntityMapping, t)
	}
	return meta, nil
}

func spaceName(t reflect.Type) string {
	if t.Implements(reflect.TypeFor[Spaced]()) {
		return reflect.Zero(t).Interface().(Spaced).SpaceName()
	}
	if reflect.PointerTo(t).Implements(reflect.TypeFor[Spaced]()) {
		return reflect.New(t).Interface().(Spaced).SpaceName()
	}
	return snakeCase(t.Name())
}

func embeddedThroughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

// placePositions gives untagged fields the lowest free positions in
// declaration order.
func placePositions(fields []FieldDescriptor) {
	used := make(map[int]bool, len(fields))
	for _, f := range fields {
		if f.Position >= 0 {
			used[f.Position] = true
		}
	}
	next := 0
	for i := range fields {
		if fields[i].Position >= 0 {
			continue
		}
		for used[next] {
			next++
		}
		fields[i].Position = next
		used[next] = true
	}
}
