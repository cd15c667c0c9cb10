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


package query

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/mapping"
)

// CallTag is the struct tag naming the stored procedure behind a method.
const CallTag = "call"

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	boolType    = reflect.TypeFor[bool]()
)

// binder carries what Bind needs to judge one method.
type binder struct {
	m      Method
	meta   *mapping.EntityMetadata
	cache  *mapping.Cache
	reg    *convert.Registry
	params []reflect.Type
	result reflect.Type
}

// Bind classifies m and precomputes its invocation plan. The first matching
// rule wins: CRUD primitive by name and shape, `call` tag, derived query
// grammar, find-by-example. Anything else fails with
// core.ErrUnresolvableRepositoryMethod.
func Bind(m Method, meta *mapping.EntityMetadata, cache *mapping.Cache) (*Plan, error) {
	b := &binder{m: m, meta: meta, cache: cache, reg: cache.Registry()}
	if err := b.signature(); err != nil {
		return nil, err
	}

	plan := &Plan{Method: m, Entity: meta, Params: b.params, Result: b.result}

	if kind, ok := b.crud(); ok {
		plan.Kind = kind
		return plan, nil
	}

	if proc, ok := m.Tag.Lookup(CallTag); ok {
		if err := b.customCall(proc); err != nil {
			return nil, err
		}
		plan.Kind = KindCustomCall
		plan.Procedure = proc
		return plan, nil
	}

	if !strings.HasPrefix(m.Name, derivedPrefix) {
		return nil, b.fail("no CRUD name, call tag or %s prefix", derivedPrefix)
	}
	if !b.returnsEntities() {
		return nil, b.fail("derived queries return %s, *%s or a slice of them", meta.Type.Name(), meta.Type.Name())
	}

	if t, ok := ParseDerived(m.Name, meta); ok && b.derivedParams(t) {
		plan.Kind = KindDerivedQuery
		plan.Template = t
		return plan, nil
	}

	if len(b.params) == 1 && b.isEntity(b.params[0]) {
		plan.Kind = KindDerivedQuery
		plan.ByExample = true
		return plan, nil
	}

	return nil, b.fail("name does not parse against the fields of %s and the method takes no example", meta.Type)
}

func (b *binder) fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", core.ErrUnresolvableRepositoryMethod, b.m.Name, fmt.Sprintf(format, args...))
}

func (b *binder) signature() error {
	ft := b.m.Type
	if ft == nil || ft.Kind() != reflect.Func {
		return b.fail("not a func")
	}
	if ft.IsVariadic() {
		return b.fail("variadic methods are not supported")
	}
	if ft.NumIn() == 0 || ft.In(0) != contextType {
		return b.fail("first parameter must be context.Context")
	}
	if ft.NumOut() == 0 || ft.NumOut() > 2 || ft.Out(ft.NumOut()-1) != errorType {
		return b.fail("results must be (error) or (T, error)")
	}
	for i := 1; i < ft.NumIn(); i++ {
		b.params = append(b.params, ft.In(i))
	}
	if ft.NumOut() == 2 {
		b.result = ft.Out(0)
	}
	return nil
}

func (b *binder) isEntity(t reflect.Type) bool {
	return t == b.meta.Type || (t.Kind() == reflect.Pointer && t.Elem() == b.meta.Type)
}

func (b *binder) isEntitySlice(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Slice && b.isEntity(t.Elem())
}

func (b *binder) returnsEntities() bool {
	return b.result != nil && (b.isEntity(b.result) || b.isEntitySlice(b.result))
}

func (b *binder) isID(t reflect.Type) bool {
	return !b.isEntity(t) && b.reg.Reachable(t)
}

func (b *binder) crud() (Kind, bool) {
	p, r := b.params, b.result
	switch b.m.Name {
	case "FindById", "FindByID":
		if len(p) == 1 && b.isID(p[0]) && r != nil && b.isEntity(r) {
			return KindFindByID, true
		}
	case "ExistsById", "ExistsByID":
		if len(p) == 1 && b.isID(p[0]) && r == boolType {
			return KindExistsByID, true
		}
	case "Save":
		if len(p) == 1 && b.isEntity(p[0]) && (r == nil || b.isEntity(r)) {
			return KindSave, true
		}
	case "BatchSave", "SaveAll":
		if len(p) == 1 && b.isEntitySlice(p[0]) && (r == nil || b.isEntitySlice(r)) {
			return KindBatchSave, true
		}
	case "DeleteAll":
		if len(p) == 0 && r == nil {
			return KindDeleteAll, true
		}
	case "Delete", "DeleteById", "DeleteByID":
		if len(p) == 1 && (b.isEntity(p[0]) || b.isID(p[0])) && r == nil {
			return KindDelete, true
		}
	case "FindAll":
		if len(p) == 0 && b.isEntitySlice(r) {
			return KindFindAll, true
		}
	}
	return 0, false
}

func (b *binder) customCall(proc string) error {
	if proc == "" {
		return b.fail("empty %s tag", CallTag)
	}
	for i, p := range b.params {
		if !b.isEntity(p) && !b.reg.Reachable(p) {
			return b.fail("parameter %d of type %s has no converter", i+1, p)
		}
	}
	if b.result != nil && !b.projectable(b.result, map[reflect.Type]bool{}) {
		return b.fail("result type %s cannot be built from tuples", b.result)
	}
	return nil
}

// projectable mirrors mapping.Mapper.Project: slices hold one element per
// tuple or per cell, structs are entities or positional value objects, the
// rest are scalars.
func (b *binder) projectable(t reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	switch {
	case b.reg.Claims(t):
		return true
	case t.Kind() == reflect.Slice:
		return b.projectable(t.Elem(), seen)
	case t.Kind() == reflect.Pointer:
		return b.projectable(t.Elem(), seen)
	case t.Kind() == reflect.Struct:
		if _, err := b.cache.MetadataFor(t); err == nil {
			return true
		}
		for _, sf := range reflect.VisibleFields(t) {
			if sf.Anonymous || !sf.IsExported() {
				continue
			}
			if !b.reg.Reachable(sf.Type) {
				return false
			}
		}
		return true
	}
	return b.reg.Reachable(t)
}

func (b *binder) derivedParams(t Template) bool {
	if len(b.params) != len(t) {
		return false
	}
	for _, c := range t {
		p := b.params[c.Param]
		if b.isEntity(p) || !b.reg.Reachable(p) {
			return false
		}
		if !compatible(p, c.Field.Type) {
			return false
		}
	}
	return true
}

// compatible reports whether values of param can be compared with a field
// of type field once both are in store form.
func compatible(param, field reflect.Type) bool {
	return storeClass(param) == storeClass(field) || storeClass(param) == classAny || storeClass(field) == classAny
}

type class int

const (
	classAny class = iota
	classBool
	classNumber
	classText
	classBinary
)

func storeClass(t reflect.Type) class {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return classBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return classNumber
	case reflect.String:
		return classText
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return classBinary
		}
	}
	return classAny
}
