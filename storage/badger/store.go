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


package badger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/observe"
	"github.com/poiesic/tuplerepo/storage"
)

// Store is an embedded tuple store on BadgerDB. Each space is a key range;
// tuples are keyed by their primary key cells so scans run in key order.
type Store struct {
	backend *Backend
	logger  *slog.Logger
	metrics *observe.Metrics

	mu     sync.RWMutex
	spaces map[string][]int

	procs *procedures
	lua   *luaRuntime
}

var (
	_ storage.Client       = (*Store)(nil)
	_ storage.SpaceDefiner = (*Store)(nil)
	_ storage.Admin        = (*Store)(nil)
)

// Option configures a Store.
type Option func(*storeOptions) error

type storeOptions struct {
	logger  *slog.Logger
	metrics *observe.Metrics
	procs   map[string]Procedure
	scripts []string
	spaces  []spaceDef
}

type spaceDef struct {
	name      string
	keyFields []int
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithMetrics records every store call on m. Without it nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *storeOptions) error {
		o.metrics = m
		return nil
	}
}

// WithProcedure registers a Go procedure at construction time.
func WithProcedure(name string, proc Procedure) Option {
	return func(o *storeOptions) error {
		if o.procs == nil {
			o.procs = make(map[string]Procedure)
		}
		o.procs[name] = proc
		return nil
	}
}

// WithScript loads a Lua script at construction time.
func WithScript(source string) Option {
	return func(o *storeOptions) error {
		o.scripts = append(o.scripts, source)
		return nil
	}
}

// WithSpace defines a space at construction time.
func WithSpace(name string, keyFields ...int) Option {
	return func(o *storeOptions) error {
		o.spaces = append(o.spaces, spaceDef{name: name, keyFields: keyFields})
		return nil
	}
}

func applyOptions(opts []Option) (*storeOptions, error) {
	o := &storeOptions{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Open opens a persistent store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	return open(dir, false, opts)
}

func open(dir string, inMemory bool, opts []Option) (*Store, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(dir, inMemory, o.logger)
	if err != nil {
		return nil, err
	}
	s, err := newStore(backend, o)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates a store over an already opened backend. The store takes
// ownership of the backend and closes it on Close.
func NewStore(backend *Backend, opts ...Option) (*Store, error) {
	o, err := applyOptions(append([]Option{WithLogger(backend.logger)}, opts...))
	if err != nil {
		return nil, err
	}
	return newStore(backend, o)
}

func newStore(backend *Backend, o *storeOptions) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  o.logger,
		metrics: o.metrics,
		spaces:  make(map[string][]int),
		procs:   newProcedures(),
	}
	s.lua = newLuaRuntime(s)

	if err := s.setup(o); err != nil {
		s.lua.close()
		return nil, err
	}
	return s, nil
}

func (s *Store) setup(o *storeOptions) error {
	if err := s.loadCatalog(); err != nil {
		return err
	}
	for _, def := range o.spaces {
		if err := s.DefineSpace(context.Background(), def.name, def.keyFields); err != nil {
			return err
		}
	}
	for name, proc := range o.procs {
		if err := s.RegisterProcedure(name, proc); err != nil {
			return err
		}
	}
	for _, src := range o.scripts {
		if _, err := s.LoadScript(src); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the Lua runtime and closes the database.
func (s *Store) Close() error {
	s.lua.close()
	return s.backend.Close()
}

// Backend returns the underlying BadgerDB wrapper.
func (s *Store) Backend() *Backend {
	return s.backend
}

func (s *Store) loadCatalog() error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(spacePrefix), func(key, val []byte) error {
			def, err := storage.UnmarshalTuple(val)
			if err != nil {
				return fmt.Errorf("space %s: %w", key, err)
			}
			fields := make([]int, len(def))
			for i, cell := range def {
				n, ok := cell.(int64)
				if !ok {
					return fmt.Errorf("%w: space %s has key field %v", storage.ErrSerializationFailed, key, cell)
				}
				fields[i] = int(n)
			}
			s.spaces[strings.TrimPrefix(string(key), spacePrefix)] = fields
			return nil
		})
	}, false)
}

// DefineSpace declares space with the given primary key positions.
// A space with no key fields is keyed by position 0. Redefining a space with
// a different key is an error; use Truncate and a new space instead.
func (s *Store) DefineSpace(ctx context.Context, space string, keyFields []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSpaceName(space); err != nil {
		return err
	}
	if len(keyFields) == 0 {
		keyFields = []int{0}
	}
	for _, f := range keyFields {
		if f < 0 {
			return fmt.Errorf("%w: negative key field %d", storage.ErrInvalidQuery, f)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.spaces[space]; ok {
		if slices.Equal(existing, keyFields) {
			return nil
		}
		return fmt.Errorf("%w: space %s already keyed by %v", storage.ErrInvalidQuery, space, existing)
	}

	def := make(core.Tuple, len(keyFields))
	for i, f := range keyFields {
		def[i] = int64(f)
	}
	value, err := storage.MarshalTuple(def)
	if err != nil {
		return err
	}
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSpaceKey(space), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	s.spaces[space] = slices.Clone(keyFields)
	s.logger.Debug("space defined", "space", space, "key_fields", keyFields)
	return nil
}

func (s *Store) keyFields(space string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.spaces[space]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrSpaceNotFound, space)
	}
	return fields, nil
}

// Get returns the tuple stored under key, or nil when there is none.
func (s *Store) Get(ctx context.Context, space string, key core.Tuple) (core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.keyFields(space); err != nil {
		return nil, err
	}
	s.record(ctx, "get", space)
	k, err := makeTupleKey(space, key)
	if err != nil {
		return nil, err
	}

	var result core.Tuple
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readTuple(tx, k)
		return err
	}, false)
	return result, err
}

// Put inserts or replaces t and returns it.
func (s *Store) Put(ctx context.Context, space string, t core.Tuple) (core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields, err := s.keyFields(space)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "put", space)
	key, err := storage.KeyOf(t, fields)
	if err != nil {
		return nil, err
	}
	k, err := makeTupleKey(space, key)
	if err != nil {
		return nil, err
	}
	value, err := storage.MarshalTuple(t)
	if err != nil {
		return nil, err
	}

	err = s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(k, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the tuple stored under key and returns it, or nil when
// there was none.
func (s *Store) Delete(ctx context.Context, space string, key core.Tuple) (core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.keyFields(space); err != nil {
		return nil, err
	}
	s.record(ctx, "delete", space)
	k, err := makeTupleKey(space, key)
	if err != nil {
		return nil, err
	}

	var old core.Tuple
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		old, err = readTuple(tx, k)
		if err != nil || old == nil {
			return err
		}
		if err := tx.Delete(k); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return old, err
}

// Select returns every tuple in space matching p, in primary key order.
func (s *Store) Select(ctx context.Context, space string, p storage.Predicate) ([]core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.keyFields(space); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.record(ctx, "select", space)

	var results []core.Tuple
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeSpacePrefix(space), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := storage.UnmarshalTuple(val)
			if err != nil {
				return err
			}
			if p.Matches(t) {
				results = append(results, t)
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Call runs a registered Go procedure or a global function defined by a
// loaded Lua script. Go procedures win on a name clash.
func (s *Store) Call(ctx context.Context, procedure string, args ...any) ([]core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.call(ctx, procedure, args)
	if s.metrics != nil {
		s.metrics.RecordProcedureCall(ctx, procedure, err)
	}
	return out, err
}

func (s *Store) call(ctx context.Context, procedure string, args []any) ([]core.Tuple, error) {
	if proc, ok := s.procs.lookup(procedure); ok {
		out, err := proc(ctx, s, args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", storage.ErrProcedureFailed, procedure, err)
		}
		return out, nil
	}
	return s.lua.call(ctx, procedure, args)
}

func (s *Store) record(ctx context.Context, op, space string) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(ctx, op, space)
	}
}

// Spaces lists the defined spaces in name order with their tuple counts.
func (s *Store) Spaces(ctx context.Context) ([]storage.SpaceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	infos := make([]storage.SpaceInfo, 0, len(s.spaces))
	for name, fields := range s.spaces {
		infos = append(infos, storage.SpaceInfo{Name: name, KeyFields: slices.Clone(fields)})
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for i := range infos {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = makeSpacePrefix(infos[i].Name)
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				infos[i].Count++
			}
			iter.Close()
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Truncate removes every tuple from space and reports how many were removed.
func (s *Store) Truncate(ctx context.Context, space string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := s.keyFields(space); err != nil {
		return 0, err
	}
	if s.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	var count int
	err := s.backend.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeSpacePrefix(space)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := s.backend.db.DropPrefix(makeSpacePrefix(space)); err != nil {
		return 0, err
	}
	s.logger.Info("space truncated", "space", space, "removed", count)
	return count, nil
}

// readTuple reads a tuple from the transaction. Returns nil, nil if absent.
func readTuple(tx *badger.Txn, key []byte) (core.Tuple, error) {
	val, err := readValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalTuple(val)
}
