package storage

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/poiesic/tuplerepo/core"
)

// Op is a comparison operator in a Condition.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Condition compares the cell at Field against Value.
type Condition struct {
	Field int
	Op    Op
	Value any
}

func (c Condition) String() string {
	return fmt.Sprintf("[%d] %s %v", c.Field, c.Op, c.Value)
}

// Matches reports whether t satisfies the condition. Cells of kinds that
// cannot be ordered against Value only satisfy OpNe.
func (c Condition) Matches(t core.Tuple) bool {
	order, ok := Compare(t.Field(c.Field), c.Value)
	if !ok {
		return c.Op == OpNe
	}
	switch c.Op {
	case OpEq:
		return order == 0
	case OpNe:
		return order != 0
	case OpGt:
		return order > 0
	case OpGe:
		return order >= 0
	case OpLt:
		return order < 0
	case OpLe:
		return order <= 0
	}
	return false
}

// Predicate is a conjunction of conditions. The empty predicate matches
// every tuple.
type Predicate []Condition

// All matches every tuple.
var All Predicate

// Matches reports whether t satisfies every condition.
func (p Predicate) Matches(t core.Tuple) bool {
	for _, c := range p {
		if !c.Matches(t) {
			return false
		}
	}
	return true
}

// Validate checks that every condition uses a known operator and a
// comparable value.
func (p Predicate) Validate() error {
	for _, c := range p {
		if c.Field < 0 {
			return fmt.Errorf("%w: negative field %d", ErrInvalidQuery, c.Field)
		}
		if c.Op < OpEq || c.Op > OpLe {
			return fmt.Errorf("%w: unknown operator %d", ErrInvalidQuery, int(c.Op))
		}
		switch core.KindOf(c.Value) {
		case core.KindArray, core.KindMap, core.KindInvalid:
			return fmt.Errorf("%w: cannot compare against %T", ErrInvalidQuery, c.Value)
		}
	}
	return nil
}

func (p Predicate) String() string {
	if len(p) == 0 {
		return "all"
	}
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}

// Compare orders two scalar cells. Numbers compare by value across the
// int, uint and double kinds. ok is false when the cells cannot be ordered
// against each other.
func Compare(a, b any) (order int, ok bool) {
	ka, kb := core.KindOf(a), core.KindOf(b)
	if isNumber(ka) && isNumber(kb) {
		return compareNumbers(a, b), true
	}
	if ka != kb {
		return 0, false
	}
	switch ka {
	case core.KindNil:
		return 0, true
	case core.KindBool:
		return compareBools(a.(bool), b.(bool)), true
	case core.KindString:
		return strings.Compare(a.(string), b.(string)), true
	case core.KindBinary:
		return bytes.Compare(a.([]byte), b.([]byte)), true
	}
	return 0, false
}

func isNumber(k core.Kind) bool {
	return k == core.KindInt || k == core.KindUint || k == core.KindDouble
}

func compareNumbers(a, b any) int {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y)
		case uint64:
			if x < 0 {
				return -1
			}
			return cmp.Compare(uint64(x), y)
		}
	case uint64:
		switch y := b.(type) {
		case uint64:
			return cmp.Compare(x, y)
		case int64:
			if y < 0 {
				return 1
			}
			return cmp.Compare(x, uint64(y))
		}
	}
	return cmp.Compare(toFloat(a), toFloat(b))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
