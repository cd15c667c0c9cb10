package convert

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/poiesic/tuplerepo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type celsius float32

type status string

type code string

func TestToStore_ExactMatch(t *testing.T) {
	reg := NewDefaultRegistry()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"int", 5, int64(5)},
		{"int8", int8(-3), int64(-3)},
		{"uint16", uint16(7), uint64(7)},
		{"float32", float32(1.5), 1.5},
		{"float64", 2.25, 2.25},
		{"bool", true, true},
		{"string", "x", "x"},
		{"bytes", []byte("ab"), []byte("ab")},
		{"time", ts, ts.UnixNano()},
		{"duration", 3 * time.Second, int64(3 * time.Second)},
		{"nil", nil, nil},
		{"nil pointer", (*int)(nil), nil},
		{"pointer", func() *int { v := 9; return &v }(), int64(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.ToStore(tt.value, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToStore_FamilyFallthroughUsesRegistrationOrder(t *testing.T) {
	reg := NewDefaultRegistry()

	// celsius has no exact converter; float64 is registered before float32.
	got, err := reg.ToStore(celsius(0.1), nil)
	require.NoError(t, err)
	assert.IsType(t, float64(0), got)
	assert.Equal(t, float64(float32(0.1)), got)

	got, err = reg.ToStore(status("active"), nil)
	require.NoError(t, err)
	assert.Equal(t, "active", got)
}

func TestFromStore_Float32RoundTripIsBitExact(t *testing.T) {
	reg := NewDefaultRegistry()
	values := []float32{1, 0.1, -3.3, math.MaxFloat32, math.SmallestNonzeroFloat32}

	for _, want := range values {
		cell, err := reg.ToStore(want, reflect.TypeFor[float32]())
		require.NoError(t, err)
		require.Equal(t, core.KindDouble, core.KindOf(cell))

		got, err := reg.FromStore(cell, reflect.TypeFor[float32]())
		require.NoError(t, err)
		assert.Equal(t, math.Float32bits(want), math.Float32bits(got.Interface().(float32)))
	}

	cell, err := reg.ToStore(celsius(0.1), nil)
	require.NoError(t, err)
	got, err := reg.FromStore(cell, reflect.TypeFor[celsius]())
	require.NoError(t, err)
	assert.Equal(t, celsius(0.1), got.Interface())
}

func TestTimeKeepsNanoseconds(t *testing.T) {
	reg := NewDefaultRegistry()
	in := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.FixedZone("CEST", 2*60*60))

	cell, err := reg.ToStore(in, nil)
	require.NoError(t, err)
	assert.Equal(t, in.UnixNano(), cell)

	out, err := reg.FromStore(cell, reflect.TypeFor[time.Time]())
	require.NoError(t, err)
	got := out.Interface().(time.Time)
	assert.True(t, in.Equal(got), "%s != %s", in, got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = reg.ToStore(time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedConversion)
	_, err = reg.ToStore(time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedConversion)
}

func TestFromStore_AmbiguousCellFollowsRegistrationOrder(t *testing.T) {
	f64 := New(core.KindDouble, func(v float64) (any, error) { return v, nil }, asFloat64)
	f32 := New(core.KindDouble, func(v float32) (any, error) { return float64(v), nil }, asFloat32)

	t.Run("double first", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(f64))
		require.NoError(t, reg.Register(f32))

		got, err := reg.FromStore(1.5, reflect.TypeFor[any]())
		require.NoError(t, err)
		assert.Equal(t, 1.5, got.Interface())
	})

	t.Run("float first", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(f32))
		require.NoError(t, reg.Register(f64))

		got, err := reg.FromStore(1.5, reflect.TypeFor[any]())
		require.NoError(t, err)
		assert.Equal(t, float32(1.5), got.Interface())
	})

	t.Run("declared type wins over order", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(f64))
		require.NoError(t, reg.Register(f32))

		got, err := reg.FromStore(1.5, reflect.TypeFor[float32]())
		require.NoError(t, err)
		assert.Equal(t, float32(1.5), got.Interface())
	})
}

func TestFromStore_NumericCellsAcrossKinds(t *testing.T) {
	reg := NewDefaultRegistry()

	got, err := reg.FromStore(int64(4), reflect.TypeFor[float64]())
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Interface())

	got, err = reg.FromStore(2000.0, reflect.TypeFor[int]())
	require.NoError(t, err)
	assert.Equal(t, 2000, got.Interface())

	got, err = reg.FromStore(int64(12), reflect.TypeFor[uint32]())
	require.NoError(t, err)
	assert.Equal(t, uint32(12), got.Interface())
}

func TestFromStore_Unsupported(t *testing.T) {
	reg := NewDefaultRegistry()

	tests := []struct {
		name     string
		cell     any
		declared reflect.Type
	}{
		{"int8 overflow", int64(300), reflect.TypeFor[int8]()},
		{"negative into uint", int64(-1), reflect.TypeFor[uint]()},
		{"fraction into int", 1.5, reflect.TypeFor[int64]()},
		{"string into int", "x", reflect.TypeFor[int]()},
		{"bool into string", true, reflect.TypeFor[string]()},
		{"float32 overflow", math.MaxFloat64, reflect.TypeFor[float32]()},
		{"int into struct", int64(1), reflect.TypeFor[struct{ A int }]()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.FromStore(tt.cell, tt.declared)
			assert.ErrorIs(t, err, core.ErrUnsupportedConversion)
		})
	}
}

func TestToStore_Unsupported(t *testing.T) {
	reg := NewDefaultRegistry()

	_, err := reg.ToStore(struct{ A int }{A: 1}, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedConversion)

	_, err = reg.ToStore(make(chan int), nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedConversion)

	narrow := NewRegistry()
	require.NoError(t, narrow.Register(signed[int8]()))
	_, err = narrow.ToStore(int64(300), nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedConversion)
}

func TestFromStore_NullPolicy(t *testing.T) {
	reg := NewDefaultRegistry()
	require.NoError(t, reg.Register(NewNullable(core.KindString,
		func(v code) (any, error) { return string(v), nil },
		func(cell any) (code, error) { s, err := asString(cell); return code(s), err },
		func() code { return "none" },
	)))

	_, err := reg.FromStore(nil, reflect.TypeFor[int]())
	assert.ErrorIs(t, err, core.ErrMissingRequiredField)

	got, err := reg.FromStore(nil, reflect.TypeFor[*int]())
	require.NoError(t, err)
	assert.True(t, got.IsNil())

	got, err = reg.FromStore(nil, reflect.TypeFor[code]())
	require.NoError(t, err)
	assert.Equal(t, code("none"), got.Interface())

	assert.True(t, reg.Nullable(reflect.TypeFor[[]string]()))
	assert.False(t, reg.Nullable(reflect.TypeFor[string]()))
}

func TestIdentityFallback(t *testing.T) {
	reg := NewRegistry()

	got, err := reg.ToStore(5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = reg.ToStore([]string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	got, err = reg.ToStore(map[string]int{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, got)

	back, err := reg.FromStore([]any{"a", "b"}, reflect.TypeFor[[]string]())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, back.Interface())

	backMap, err := reg.FromStore(map[string]any{"a": int64(1)}, reflect.TypeFor[map[string]int]())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, backMap.Interface())
}

func TestRegister(t *testing.T) {
	t.Run("duplicate replaces in place", func(t *testing.T) {
		reg := NewDefaultRegistry()
		before := len(reg.pending)
		require.NoError(t, reg.Register(New(core.KindString,
			func(v string) (any, error) { return "x" + v, nil }, asString)))
		assert.Len(t, reg.pending, before)

		got, err := reg.ToStore("a", nil)
		require.NoError(t, err)
		assert.Equal(t, "xa", got)
	})

	t.Run("frozen after first use", func(t *testing.T) {
		reg := NewDefaultRegistry()
		assert.False(t, reg.Frozen())
		_, err := reg.ToStore(1, nil)
		require.NoError(t, err)
		assert.True(t, reg.Frozen())

		err = reg.Register(signed[int8]())
		assert.ErrorIs(t, err, ErrRegistryFrozen)
	})

	t.Run("invalid converter", func(t *testing.T) {
		reg := NewRegistry()
		err := reg.Register(Converter{})
		assert.ErrorIs(t, err, ErrInvalidConverter)
	})

	t.Run("converter producing wrong kind", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(New(core.KindInt,
			func(v status) (any, error) { return string(v), nil },
			func(cell any) (status, error) { return "", nil })))
		_, err := reg.ToStore(status("a"), nil)
		assert.ErrorIs(t, err, core.ErrUnsupportedConversion)
	})
}

func TestBuiltinsOrder(t *testing.T) {
	stack := NewDefaultRegistry().Converters()

	index := func(t reflect.Type) int {
		for i, c := range stack {
			if c.HostType == t {
				return i
			}
		}
		return -1
	}

	assert.Less(t, index(reflect.TypeFor[float64]()), index(reflect.TypeFor[float32]()))
	assert.Less(t, index(reflect.TypeFor[int64]()), index(reflect.TypeFor[int8]()))
	assert.Less(t, index(reflect.TypeFor[uint64]()), index(reflect.TypeFor[uint8]()))
}

func TestReachable(t *testing.T) {
	reg := NewDefaultRegistry()

	assert.True(t, reg.Reachable(reflect.TypeFor[int]()))
	assert.True(t, reg.Reachable(reflect.TypeFor[celsius]()))
	assert.True(t, reg.Reachable(reflect.TypeFor[time.Time]()))
	assert.True(t, reg.Reachable(reflect.TypeFor[*string]()))
	assert.True(t, reg.Reachable(reflect.TypeFor[[]int]()))
	assert.True(t, reg.Reachable(reflect.TypeFor[map[string]float64]()))
	assert.True(t, reg.Reachable(reflect.TypeFor[any]()))

	assert.False(t, reg.Reachable(reflect.TypeFor[chan int]()))
	assert.False(t, reg.Reachable(reflect.TypeFor[func()]()))
	assert.False(t, reg.Reachable(reflect.TypeFor[struct{ A int }]()))
	assert.False(t, reg.Reachable(reflect.TypeFor[map[int]string]()))
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}
