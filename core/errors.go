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
	"errors"
	"fmt"
)

// Bind-time errors. A repository that hits one of these is never usable.
var (
	// ErrInvalidEntityMapping indicates a malformed entity type declaration.
	ErrInvalidEntityMapping = errors.New("invalid entity mapping")

	// ErrUnresolvableRepositoryMethod indicates a declared repository method
	// that cannot be mapped to any supported behavior.
	ErrUnresolvableRepositoryMethod = errors.New("unresolvable repository method")
)

// Per-call errors.
var (
	// ErrUnsupportedConversion indicates a value its resolved converter cannot handle.
	ErrUnsupportedConversion = errors.New("unsupported conversion")

	// ErrMissingRequiredField indicates a tuple lacks a cell the target type requires.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrStoreUnavailable indicates the underlying store call failed or timed out.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPartialBatchFailure indicates a batch write stopped part way through.
	ErrPartialBatchFailure = errors.New("partial batch failure")

	// ErrInvalidTuple indicates a tuple holds a value with no store-native kind.
	ErrInvalidTuple = errors.New("invalid tuple")
)

// PartialBatchError reports the first failing entity of a batch write.
// Entities before Index were written and stay written.
type PartialBatchError struct {
	Index     int
	Committed int
	Err       error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%v: entity %d failed after %d committed: %v",
		ErrPartialBatchFailure, e.Index, e.Committed, e.Err)
}

// Is matches ErrPartialBatchFailure.
func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatchFailure
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}
