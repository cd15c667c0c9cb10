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


// Package storage defines the tuple store boundary used by repositories.
//
// A store holds named spaces of tuples, each keyed by a primary key made of
// some of its cells. Client is the only contract the repository layer
// depends on, so any store speaking tuples can sit behind it:
//
//	client, err := badger.NewMemoryStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	_, err = client.Put(ctx, "book", core.Tuple{int64(1), "Dune"})
//
// # Predicates
//
// Select filters with a Predicate, a conjunction of Conditions each
// comparing one tuple position against a value. Numbers compare by value
// across the int, uint and double kinds.
//
// # Encoding
//
// MarshalTuple and UnmarshalTuple serialize tuples with their cell kinds.
// MarshalKey produces order-preserving key bytes for ordered stores.
//
// # Thread Safety
//
// All Client implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
