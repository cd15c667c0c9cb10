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


// Package convert provides the ordered converter stack that maps Go values
// to store-native tuple cells and back.
//
// # Resolution
//
// Writing a value, the registry picks the first converter whose host type is
// exactly the value's runtime type, then the first converter whose host type
// the value converts to within the same family (bool, string, signed,
// unsigned, float, bytes), then falls back to identity for plain Go kinds.
//
// Reading a cell, the declared field type decides first. Only when no
// converter claims the declared type does the cell's store kind drive the
// choice, and then registration order settles ties:
//
//	reg := convert.NewRegistry()
//	reg.Register(convert.New(core.KindDouble, toF64, fromF64))
//	reg.Register(convert.New(core.KindDouble, toF32, fromF32))
//	v, _ := reg.FromStore(1.5, reflect.TypeFor[any]()) // float64(1.5)
//
// # Lifecycle
//
// Register converters during setup. The first conversion freezes the stack;
// Register then fails with ErrRegistryFrozen and lookups run lock-free.
package convert
