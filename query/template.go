package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/mapping"
	"github.com/poiesic/tuplerepo/storage"
)

// Operator is a comparison named in a derived query method.
type Operator int

const (
	OpEquals Operator = iota
	OpNot
	OpGreaterThan
	OpGreaterThanEqual
	OpLessThan
	OpLessThanEqual
)

func (o Operator) storageOp() storage.Op {
	switch o {
	case OpNot:
		return storage.OpNe
	case OpGreaterThan:
		return storage.OpGt
	case OpGreaterThanEqual:
		return storage.OpGe
	case OpLessThan:
		return storage.OpLt
	case OpLessThanEqual:
		return storage.OpLe
	}
	return storage.OpEq
}

func (o Operator) String() string {
	return o.storageOp().String()
}

// Clause compares one entity field against one method parameter.
type Clause struct {
	Field mapping.FieldDescriptor
	Op    Operator
	Param int // index into the arguments after the context
}

func (c Clause) String() string {
	return fmt.Sprintf("%s %s $%d", c.Field.Name, c.Op, c.Param)
}

// Template is an AND-combined list of clauses with parameter placeholders.
type Template []Clause

func (t Template) String() string {
	parts := make([]string, len(t))
	for i, c := range t {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}

// Bind substitutes call arguments into the template.
func (t Template) Bind(args []any, reg *convert.Registry) (storage.Predicate, error) {
	p := make(storage.Predicate, len(t))
	for i, c := range t {
		if c.Param >= len(args) {
			return nil, fmt.Errorf("%w: missing argument %d", storage.ErrInvalidQuery, c.Param)
		}
		cell, err := reg.ToStore(args[c.Param], c.Field.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %d for %s: %w", c.Param, c.Field.GoName, err)
		}
		p[i] = storage.Condition{Field: c.Field.Position, Op: c.Op.storageOp(), Value: cell}
	}
	return p, nil
}

// Example builds an equality predicate from the non-zero fields of entity.
// Fields holding lists or maps are skipped since they cannot be compared.
// An entity with every field zero yields the empty predicate, which
// matches everything.
func Example(entity any, meta *mapping.EntityMetadata, reg *convert.Registry) (storage.Predicate, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, mapping.ErrNilEntity
		}
		rv = rv.Elem()
	}
	if rv.Type() != meta.Type {
		return nil, fmt.Errorf("%w: example is %s, want %s", storage.ErrInvalidQuery, rv.Type(), meta.Type)
	}

	var p storage.Predicate
	for _, f := range meta.Fields {
		fv := f.ValueOf(rv)
		if fv.IsZero() {
			continue
		}
		cell, err := reg.ToStore(fv.Interface(), f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.GoName, err)
		}
		switch core.KindOf(cell) {
		case core.KindNil, core.KindArray, core.KindMap:
			continue
		}
		p = append(p, storage.Condition{Field: f.Position, Op: storage.OpEq, Value: cell})
	}
	return p, nil
}
