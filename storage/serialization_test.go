package storage

import (
	"math"
	"testing"

	"github.com/poiesic/tuplerepo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalTuple(t *testing.T) {
	tests := []struct {
		name  string
		tuple core.Tuple
	}{
		{"empty tuple", core.Tuple{}},
		{"scalars", core.Tuple{int64(-5), uint64(math.MaxUint64), 1.25, "Dune", true, false}},
		{"nil cell", core.Tuple{int64(1), nil, "x"}},
		{"binary", core.Tuple{[]byte{0x00, 0x01, 0xFF}}},
		{"extreme ints", core.Tuple{int64(math.MinInt64), int64(math.MaxInt64)}},
		{"nested array", core.Tuple{[]any{int64(1), []any{"a", nil}}}},
		{"map", core.Tuple{map[string]any{"b": int64(2), "a": []any{1.5}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalTuple(tt.tuple)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalTuple(data)
			require.NoError(t, err)
			assert.Equal(t, tt.tuple, decoded)
		})
	}
}

func TestMarshalTuple_Deterministic(t *testing.T) {
	tuple := core.Tuple{map[string]any{"z": int64(1), "a": int64(2), "m": int64(3)}}
	first, err := MarshalTuple(tuple)
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalTuple(tuple)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshalTuple_RejectsNonNative(t *testing.T) {
	_, err := MarshalTuple(core.Tuple{42})
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, core.ErrInvalidTuple)
}

func TestUnmarshalTuple_Invalid(t *testing.T) {
	valid, err := MarshalTuple(core.Tuple{"hello", int64(300)})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty data", []byte{}, ErrTruncatedData},
		{"truncated", valid[:len(valid)-1], ErrTruncatedData},
		{"trailing bytes", append(append([]byte{}, valid...), 0x01), ErrSerializationFailed},
		{"unknown kind", []byte{0x01, 0x7F}, ErrSerializationFailed},
		{"count too large", []byte{0x05, byte(core.KindNil)}, ErrTruncatedData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalTuple(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
