package convert

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/poiesic/tuplerepo/core"
)

var errNotNumeric = errors.New("not a numeric cell")

// Builtins returns the default converter stack in registration order.
//
// The order is a contract. Within each numeric family the widest type comes
// first, so a value whose type has no exact match (a named float32, say)
// resolves to the wide converter, and a Double cell decoded into an
// interface yields float64, never float32.
func Builtins() []Converter {
	return []Converter{
		New(core.KindBool, func(v bool) (any, error) { return v, nil }, asBool),
		New(core.KindString, func(v string) (any, error) { return v, nil }, asString),
		signed[int64](),
		signed[int](),
		signed[int32](),
		signed[int16](),
		signed[int8](),
		unsigned[uint64](),
		unsigned[uint](),
		unsigned[uint32](),
		unsigned[uint16](),
		unsigned[uint8](),
		New(core.KindDouble, func(v float64) (any, error) { return v, nil }, asFloat64),
		New(core.KindDouble, func(v float32) (any, error) { return float64(v), nil }, asFloat32),
		New(core.KindBinary, func(v []byte) (any, error) { return append([]byte(nil), v...), nil }, asBytes),
		New(core.KindInt, timeToStore, asTime),
		New(core.KindInt, func(v time.Duration) (any, error) { return int64(v), nil }, asDuration),
	}
}

func signed[T ~int | ~int8 | ~int16 | ~int32 | ~int64]() Converter {
	bits := reflect.TypeFor[T]().Bits()
	return New(core.KindInt,
		func(v T) (any, error) { return int64(v), nil },
		func(cell any) (T, error) {
			n, err := asInt64(cell)
			if err != nil {
				return 0, err
			}
			if bits < 64 {
				limit := int64(1) << (bits - 1)
				if n < -limit || n >= limit {
					return 0, fmt.Errorf("%d overflows %d-bit integer", n, bits)
				}
			}
			return T(n), nil
		})
}

func unsigned[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64]() Converter {
	bits := reflect.TypeFor[T]().Bits()
	return New(core.KindUint,
		func(v T) (any, error) { return uint64(v), nil },
		func(cell any) (T, error) {
			n, err := asUint64(cell)
			if err != nil {
				return 0, err
			}
			if bits < 64 && n >= uint64(1)<<bits {
				return 0, fmt.Errorf("%d overflows %d-bit unsigned integer", n, bits)
			}
			return T(n), nil
		})
}

func asBool(cell any) (bool, error) {
	b, ok := cell.(bool)
	if !ok {
		return false, fmt.Errorf("cannot decode %s as bool", core.KindOf(cell))
	}
	return b, nil
}

func asString(cell any) (string, error) {
	switch v := cell.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("cannot decode %s as string", core.KindOf(cell))
}

func asBytes(cell any) ([]byte, error) {
	switch v := cell.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("cannot decode %s as binary", core.KindOf(cell))
}

func asInt64(cell any) (int64, error) {
	switch v := cell.(type) {
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integral int64", v)
		}
		return int64(v), nil
	}
	return 0, fmt.Errorf("%w: %s", errNotNumeric, core.KindOf(cell))
}

func asUint64(cell any) (uint64, error) {
	switch v := cell.(type) {
	case uint64:
		return v, nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("%d is negative", v)
		}
		return uint64(v), nil
	case float64:
		if v != math.Trunc(v) || v < 0 || v >= math.MaxUint64 {
			return 0, fmt.Errorf("%v is not an integral uint64", v)
		}
		return uint64(v), nil
	}
	return 0, fmt.Errorf("%w: %s", errNotNumeric, core.KindOf(cell))
}

func asFloat64(cell any) (float64, error) {
	switch v := cell.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: %s", errNotNumeric, core.KindOf(cell))
}

func asFloat32(cell any) (float32, error) {
	f, err := asFloat64(cell)
	if err != nil {
		return 0, err
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("%v overflows float32", f)
	}
	return float32(f), nil
}

var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

// timeToStore keeps the instant at nanosecond precision. The location is
// not stored; times decode in UTC.
func timeToStore(v time.Time) (any, error) {
	if v.Before(minTime) || v.After(maxTime) {
		return nil, fmt.Errorf("%s outside the nanosecond range", v)
	}
	return v.UnixNano(), nil
}

func asTime(cell any) (time.Time, error) {
	n, err := asInt64(cell)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func asDuration(cell any) (time.Duration, error) {
	n, err := asInt64(cell)
	if err != nil {
		return 0, err
	}
	return time.Duration(n), nil
}
