package core

import (
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Kind
	}{
		{"nil", nil, KindNil},
		{"bool", true, KindBool},
		{"int64", int64(-4), KindInt},
		{"uint64", uint64(4), KindUint},
		{"float64", 1.5, KindDouble},
		{"string", "x", KindString},
		{"bytes", []byte("x"), KindBinary},
		{"array", []any{int64(1)}, KindArray},
		{"map", map[string]any{"a": int64(1)}, KindMap},
		{"plain int is not native", 4, KindInvalid},
		{"float32 is not native", float32(1), KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.value); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestTupleField(t *testing.T) {
	tuple := Tuple{int64(1), "a"}

	if got := tuple.Field(1); got != "a" {
		t.Errorf("Field(1) = %v, want a", got)
	}
	if got := tuple.Field(5); got != nil {
		t.Errorf("Field(5) = %v, want nil", got)
	}
	if got := tuple.Field(-1); got != nil {
		t.Errorf("Field(-1) = %v, want nil", got)
	}
}

func TestTupleString(t *testing.T) {
	tuple := Tuple{"testString", int64(4)}
	if got := tuple.String(); got != `("testString", 4)` {
		t.Errorf("String() = %s", got)
	}
}
