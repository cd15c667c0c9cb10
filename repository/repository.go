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


package repository

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"

	"github.com/poiesic/tuplerepo/mapping"
	"github.com/poiesic/tuplerepo/observe"
	"github.com/poiesic/tuplerepo/query"
	"github.com/poiesic/tuplerepo/storage"
)

// CrudRepository declares the CRUD primitives for entity E with identity
// type ID. Embed it in a repository struct to get them without spelling
// each one out.
type CrudRepository[E any, ID any] struct {
	FindById   func(ctx context.Context, id ID) (*E, error)
	ExistsById func(ctx context.Context, id ID) (bool, error)
	Save       func(ctx context.Context, entity *E) (*E, error)
	BatchSave  func(ctx context.Context, entities []*E) ([]*E, error)
	FindAll    func(ctx context.Context) ([]*E, error)
	Delete     func(ctx context.Context, entity *E) error
	DeleteById func(ctx context.Context, id ID) error
	DeleteAll  func(ctx context.Context) error
}

// Repository holds the invocation plans behind one repository struct and
// the resources its methods share.
type Repository[E any] struct {
	client  storage.Client
	mapper  *mapping.Mapper
	meta    *mapping.EntityMetadata
	plans   map[string]*query.Plan
	logger  *slog.Logger
	metrics *observe.Metrics
}

// New binds every exported func field of target, a pointer to a struct, to
// an implementation derived from its name, tag and signature. Fields of
// embedded structs such as CrudRepository count too.
//
// Every plan is bound before any field is assigned, so an unresolvable
// method leaves target untouched. When client implements
// storage.SpaceDefiner the space of E is defined with its identity as the
// primary key.
func New[E any](client storage.Client, target any, opts ...Option) (*Repository[E], error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer || tv.IsNil() || tv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidTarget, target)
	}

	s := &settings{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cache == nil {
		s.cache = mapping.DefaultCache()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	meta, err := s.cache.MetadataFor(reflect.TypeFor[E]())
	if err != nil {
		return nil, err
	}

	methods := declaredMethods(tv.Elem().Type())
	plans := make(map[string]*query.Plan, len(methods))
	for _, sf := range methods {
		plan, err := query.Bind(query.Method{Name: sf.Name, Type: sf.Type, Tag: sf.Tag}, meta, s.cache)
		if err != nil {
			return nil, err
		}
		plans[sf.Name] = plan
	}

	if definer, ok := client.(storage.SpaceDefiner); ok {
		if err := definer.DefineSpace(context.Background(), meta.SpaceName, meta.KeyFields()); err != nil {
			return nil, storeError("define space "+meta.SpaceName, err)
		}
	}

	r := &Repository[E]{
		client:  client,
		mapper:  mapping.NewMapper(s.cache),
		meta:    meta,
		plans:   plans,
		logger:  s.logger.With("entity", meta.Type.Name(), "space", meta.SpaceName),
		metrics: s.metrics,
	}

	for _, sf := range methods {
		plan := plans[sf.Name]
		field(tv.Elem(), sf.Index).Set(r.makeFunc(plan))
		r.logger.Debug("bound repository method", "plan", plan.String())
	}
	return r, nil
}

// declaredMethods returns the exported func fields of t, including those
// promoted from embedded structs, in declaration order.
func declaredMethods(t reflect.Type) []reflect.StructField {
	var out []reflect.StructField
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() || sf.Type.Kind() != reflect.Func {
			continue
		}
		out = append(out, sf)
	}
	return out
}

// field walks index from v, allocating nil embedded pointers on the way.
func field(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// Metadata returns the mapping metadata of E.
func (r *Repository[E]) Metadata() *mapping.EntityMetadata {
	return r.meta
}

// Plans returns a copy of the plans keyed by method name.
func (r *Repository[E]) Plans() map[string]*query.Plan {
	return maps.Clone(r.plans)
}

// Plan returns the plan bound to the named method.
func (r *Repository[E]) Plan(name string) (*query.Plan, bool) {
	p, ok := r.plans[name]
	return p, ok
}

// Mapper returns the tuple mapper the repository converts with.
func (r *Repository[E]) Mapper() *mapping.Mapper {
	return r.mapper
}
