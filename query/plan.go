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
	"fmt"
	"reflect"

	"github.com/poiesic/tuplerepo/mapping"
)

// Kind classifies what a repository method does.
type Kind int

const (
	KindFindByID Kind = iota + 1
	KindExistsByID
	KindSave
	KindBatchSave
	KindDeleteAll
	KindDelete
	KindFindAll
	KindDerivedQuery
	KindCustomCall
)

func (k Kind) String() string {
	switch k {
	case KindFindByID:
		return "FindById"
	case KindExistsByID:
		return "ExistsById"
	case KindSave:
		return "Save"
	case KindBatchSave:
		return "BatchSave"
	case KindDeleteAll:
		return "DeleteAll"
	case KindDelete:
		return "Delete"
	case KindFindAll:
		return "FindAll"
	case KindDerivedQuery:
		return "DerivedQuery"
	case KindCustomCall:
		return "CustomCall"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Method is a declared repository method: a func-typed struct field.
type Method struct {
	Name string
	Type reflect.Type // func type; first param context.Context, last result error
	Tag  reflect.StructTag
}

// Plan is the precomputed invocation plan of one method. It is built once
// when the repository is created and never changes afterwards.
type Plan struct {
	Method Method
	Kind   Kind
	Entity *mapping.EntityMetadata

	// Params are the declared parameter types after the context.
	Params []reflect.Type
	// Result is the declared non-error result type, nil for error-only methods.
	Result reflect.Type

	// Template is the predicate of a derived query parsed from the name.
	Template Template
	// ByExample marks a derived query whose predicate comes from the
	// non-zero fields of its entity argument on every call.
	ByExample bool
	// Procedure is the stored procedure behind a custom call.
	Procedure string
}

func (p *Plan) String() string {
	switch {
	case p.Kind == KindCustomCall:
		return fmt.Sprintf("%s: call %s", p.Method.Name, p.Procedure)
	case p.ByExample:
		return fmt.Sprintf("%s: select %s by example", p.Method.Name, p.Entity.SpaceName)
	case p.Kind == KindDerivedQuery:
		return fmt.Sprintf("%s: select %s where %s", p.Method.Name, p.Entity.SpaceName, p.Template)
	}
	return fmt.Sprintf("%s: %s %s", p.Method.Name, p.Kind, p.Entity.SpaceName)
}

// ReturnsSlice reports whether the method returns a slice of results.
func (p *Plan) ReturnsSlice() bool {
	return p.Result != nil && p.Result.Kind() == reflect.Slice
}
