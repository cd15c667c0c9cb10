package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/poiesic/tuplerepo/core"
)

// Key cell tags. Their order is the order of kinds in the key space:
// false < true < negative integers < non-negative integers < doubles <
// strings < binaries.
const (
	keyFalse byte = 0x10 + iota
	keyTrue
	keyNegInt
	keyNonNegInt
	keyDouble
	keyString
	keyBinary
)

// MarshalKey encodes a primary key so that byte order matches key order.
// Int and uint cells holding the same value encode identically.
func MarshalKey(key core.Tuple) ([]byte, error) {
	if err := core.ValidateKey(key); err != nil {
		return nil, err
	}
	var buf []byte
	for _, cell := range key {
		switch v := cell.(type) {
		case bool:
			if v {
				buf = append(buf, keyTrue)
			} else {
				buf = append(buf, keyFalse)
			}
		case int64:
			if v < 0 {
				buf = append(buf, keyNegInt)
			} else {
				buf = append(buf, keyNonNegInt)
			}
			// Write in BigEndian order so lexicographic sort works correctly
			buf = binary.BigEndian.AppendUint64(buf, uint64(v))
		case uint64:
			buf = append(buf, keyNonNegInt)
			buf = binary.BigEndian.AppendUint64(buf, v)
		case float64:
			bits := math.Float64bits(v)
			if bits&(1<<63) != 0 {
				bits = ^bits
			} else {
				bits |= 1 << 63
			}
			buf = append(buf, keyDouble)
			buf = binary.BigEndian.AppendUint64(buf, bits)
		case string:
			buf = append(buf, keyString)
			buf = appendEscaped(buf, []byte(v))
		case []byte:
			buf = append(buf, keyBinary)
			buf = appendEscaped(buf, v)
		default:
			return nil, fmt.Errorf("%w: %T in key", core.ErrInvalidTuple, cell)
		}
	}
	return buf, nil
}

// appendEscaped writes b with 0x00 escaped as 0x00 0xFF and a 0x00 0x01
// terminator, so a string sorts before any longer string it prefixes.
func appendEscaped(buf, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			buf = append(buf, 0x00, 0xFF)
			continue
		}
		buf = append(buf, c)
	}
	return append(buf, 0x00, 0x01)
}

// KeyOf extracts the key cells at fields from t.
func KeyOf(t core.Tuple, fields []int) (core.Tuple, error) {
	key := make(core.Tuple, len(fields))
	for i, f := range fields {
		if f < 0 || f >= len(t) {
			return nil, fmt.Errorf("%w: key field %d missing from tuple of %d cells", core.ErrInvalidTuple, f, len(t))
		}
		key[i] = t[f]
	}
	return key, nil
}
