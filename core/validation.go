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


package core

import (
	"fmt"
)

// ValidateTuple checks that every cell, including nested ones, has a store-native kind.
//
// Validation rules:
//   - Each cell must be one of the Go types listed on the Kind constants
//   - Arrays and maps are validated recursively
//
// An empty tuple is valid.
func ValidateTuple(t Tuple) error {
	for i, v := range t {
		if err := validateCell(v); err != nil {
			return fmt.Errorf("%w: field %d: %w", ErrInvalidTuple, i, err)
		}
	}
	return nil
}

func validateCell(v any) error {
	switch k := KindOf(v); k {
	case KindInvalid:
		return fmt.Errorf("type %T has no store-native kind", v)
	case KindArray:
		for i, item := range v.([]any) {
			if err := validateCell(item); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case KindMap:
		for key, item := range v.(map[string]any) {
			if err := validateCell(item); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
	}
	return nil
}

// ValidateKey checks a primary-key tuple: non-empty, and only scalar kinds.
func ValidateKey(key Tuple) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidTuple)
	}
	for i, v := range key {
		switch KindOf(v) {
		case KindBool, KindInt, KindUint, KindDouble, KindString, KindBinary:
		default:
			return fmt.Errorf("%w: key part %d has kind %s", ErrInvalidTuple, i, KindOf(v))
		}
	}
	return nil
}
