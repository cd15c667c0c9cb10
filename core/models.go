package core

import "fmt"

// Tuple is an ordered sequence of store-native values representing one stored record.
type Tuple []any

// Kind identifies the store-native representation of a tuple cell.
type Kind int

const (
	// KindInvalid marks a Go value with no store-native representation.
	KindInvalid Kind = iota
	// KindNil is an absent value.
	KindNil
	// KindBool is a bool.
	KindBool
	// KindInt is a signed 64-bit integer.
	KindInt
	// KindUint is an unsigned 64-bit integer.
	KindUint
	// KindDouble is a 64-bit float. The store has no narrower float kind.
	KindDouble
	// KindString is a UTF-8 string.
	KindString
	// KindBinary is an opaque byte string.
	KindBinary
	// KindArray is a nested []any.
	KindArray
	// KindMap is a nested map[string]any.
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// KindOf returns the store-native kind of v.
// Only the exact Go types listed on the Kind constants qualify.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNil
	case bool:
		return KindBool
	case int64:
		return KindInt
	case uint64:
		return KindUint
	case float64:
		return KindDouble
	case string:
		return KindString
	case []byte:
		return KindBinary
	case []any:
		return KindArray
	case map[string]any:
		return KindMap
	default:
		return KindInvalid
	}
}

// Field returns the cell at position i, or nil when the tuple is shorter.
func (t Tuple) Field(i int) any {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// String renders the tuple as "(a, b, c)".
func (t Tuple) String() string {
	s := "("
	for i, v := range t {
		if i > 0 {
			s += ", "
		}
		if str, ok := v.(string); ok {
			s += fmt.Sprintf("%q", str)
			continue
		}
		s += fmt.Sprintf("%v", v)
	}
	return s + ")"
}
