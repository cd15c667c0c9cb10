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


package repository

import (
	"errors"
	"fmt"

	"github.com/poiesic/tuplerepo/core"
)

var (
	// ErrInvalidTarget is returned when New is not given a non-nil pointer
	// to a struct.
	ErrInvalidTarget = errors.New("repository target must be a non-nil pointer to a struct")

	// ErrClientRequired is returned when New is given a nil client.
	ErrClientRequired = errors.New("store client is required")
)

// classified lists the sentinels that already tell callers what went wrong.
var classified = []error{
	core.ErrStoreUnavailable,
	core.ErrInvalidEntityMapping,
	core.ErrUnresolvableRepositoryMethod,
	core.ErrUnsupportedConversion,
	core.ErrMissingRequiredField,
	core.ErrPartialBatchFailure,
	core.ErrInvalidTuple,
}

// storeError wraps an error returned by the client with
// core.ErrStoreUnavailable unless it already carries a classification.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, c := range classified {
		if errors.Is(err, c) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStoreUnavailable, op, err)
}
