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


package storage

import (
	"fmt"
	"slices"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/tuplerepo/core"
)

// MarshalTuple serializes a tuple to bytes. Every cell carries its kind, so
// UnmarshalTuple restores the exact store-native types.
func MarshalTuple(t core.Tuple) ([]byte, error) {
	if err := core.ValidateTuple(t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	buf := appendCount(nil, len(t))
	for _, cell := range t {
		buf = appendCell(buf, cell)
	}
	return buf, nil
}

// UnmarshalTuple deserializes a tuple written by MarshalTuple.
func UnmarshalTuple(data []byte) (core.Tuple, error) {
	d := decoder{data: data}
	count, err := d.count()
	if err != nil {
		return nil, err
	}
	t := make(core.Tuple, count)
	for i := range t {
		if t[i], err = d.cell(); err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
	}
	if len(d.data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(d.data))
	}
	return t, nil
}

func appendCount(buf []byte, n int) []byte {
	v := uint64(n)
	return grow(buf, varint.Uint64.Size(v), func(bs []byte) int { return varint.Uint64.Marshal(v, bs) })
}

func appendCell(buf []byte, cell any) []byte {
	buf = append(buf, byte(core.KindOf(cell)))
	switch v := cell.(type) {
	case nil:
	case bool:
		buf = grow(buf, ord.Bool.Size(v), func(bs []byte) int { return ord.Bool.Marshal(v, bs) })
	case int64:
		buf = grow(buf, varint.Int64.Size(v), func(bs []byte) int { return varint.Int64.Marshal(v, bs) })
	case uint64:
		buf = grow(buf, varint.Uint64.Size(v), func(bs []byte) int { return varint.Uint64.Marshal(v, bs) })
	case float64:
		buf = grow(buf, raw.Float64.Size(v), func(bs []byte) int { return raw.Float64.Marshal(v, bs) })
	case string:
		buf = appendString(buf, v)
	case []byte:
		buf = appendString(buf, string(v))
	case []any:
		buf = appendCount(buf, len(v))
		for _, item := range v {
			buf = appendCell(buf, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf = appendCount(buf, len(keys))
		for _, k := range keys {
			buf = appendString(buf, k)
			buf = appendCell(buf, v[k])
		}
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	return grow(buf, ord.String.Size(s), func(bs []byte) int { return ord.String.Marshal(s, bs) })
}

func grow(buf []byte, size int, marshal func([]byte) int) []byte {
	start := len(buf)
	buf = slices.Grow(buf, size)[:start+size]
	marshal(buf[start:])
	return buf
}

type decoder struct {
	data []byte
}

func (d *decoder) advance(n int, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	d.data = d.data[n:]
	return nil
}

func (d *decoder) count() (int, error) {
	v, n, err := varint.Uint64.Unmarshal(d.data)
	if err := d.advance(n, err); err != nil {
		return 0, err
	}
	// Every element takes at least one byte.
	if v > uint64(len(d.data)) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrTruncatedData, v, len(d.data))
	}
	return int(v), nil
}

func (d *decoder) str() (string, error) {
	v, n, err := ord.String.Unmarshal(d.data)
	return v, d.advance(n, err)
}

func (d *decoder) cell() (any, error) {
	if len(d.data) == 0 {
		return nil, ErrTruncatedData
	}
	kind := core.Kind(d.data[0])
	d.data = d.data[1:]

	switch kind {
	case core.KindNil:
		return nil, nil
	case core.KindBool:
		v, n, err := ord.Bool.Unmarshal(d.data)
		return v, d.advance(n, err)
	case core.KindInt:
		v, n, err := varint.Int64.Unmarshal(d.data)
		return v, d.advance(n, err)
	case core.KindUint:
		v, n, err := varint.Uint64.Unmarshal(d.data)
		return v, d.advance(n, err)
	case core.KindDouble:
		v, n, err := raw.Float64.Unmarshal(d.data)
		return v, d.advance(n, err)
	case core.KindString:
		return d.str()
	case core.KindBinary:
		s, err := d.str()
		return []byte(s), err
	case core.KindArray:
		count, err := d.count()
		if err != nil {
			return nil, err
		}
		out := make([]any, count)
		for i := range out {
			if out[i], err = d.cell(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case core.KindMap:
		count, err := d.count()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, count)
		for range count {
			k, err := d.str()
			if err != nil {
				return nil, err
			}
			if out[k], err = d.cell(); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown cell kind %d", ErrSerializationFailed, int(kind))
}
