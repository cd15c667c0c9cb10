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


package tuplerepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/tuplerepo/config"
	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/mapping"
	"github.com/poiesic/tuplerepo/observe"
	"github.com/poiesic/tuplerepo/repository"
	"github.com/poiesic/tuplerepo/storage"
	"github.com/poiesic/tuplerepo/storage/badger"
)

// Database wires an embedded tuple store to a converter registry and the
// repositories built over it. Administrative work spanning several spaces
// runs on a worker pool of cfg.PoolSize goroutines, released by Close.
type Database struct {
	store   *badger.Store
	cache   *mapping.Cache
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observe.Metrics
	pool    *ants.Pool

	mu     sync.Mutex
	closed bool
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	registry   *convert.Registry
	logger     *slog.Logger
	metrics    *observe.Metrics
	procedures map[string]badger.Procedure
}

// WithRegistry converts with reg instead of a fresh default registry.
func WithRegistry(reg *convert.Registry) DatabaseOption {
	return func(o *databaseOptions) {
		o.registry = reg
	}
}

// WithLogger sets the logger for the store and every repository.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithMetrics records store and repository activity on m.
func WithMetrics(m *observe.Metrics) DatabaseOption {
	return func(o *databaseOptions) {
		o.metrics = m
	}
}

// WithProcedure registers a Go stored procedure.
func WithProcedure(name string, proc badger.Procedure) DatabaseOption {
	return func(o *databaseOptions) {
		if o.procedures == nil {
			o.procedures = make(map[string]badger.Procedure)
		}
		o.procedures[name] = proc
	}
}

// NewDatabase opens a persistent database in dir with default settings.
func NewDatabase(dir string, opts ...DatabaseOption) (*Database, error) {
	return Open(config.NewConfig(config.WithPath(dir)), opts...)
}

// Open validates cfg, opens the store it describes, defines its spaces and
// loads its scripts.
func Open(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.registry == nil {
		options.registry = convert.NewDefaultRegistry(convert.WithLogger(options.logger))
	}
	if options.metrics == nil {
		options.metrics = observe.DefaultMetrics()
	}

	scripts, err := cfg.ReadScripts()
	if err != nil {
		return nil, err
	}

	storeOpts := []badger.Option{
		badger.WithLogger(options.logger),
		badger.WithMetrics(options.metrics),
	}
	for _, sp := range cfg.Spaces {
		storeOpts = append(storeOpts, badger.WithSpace(sp.Name, sp.KeyFields...))
	}
	for name, proc := range options.procedures {
		storeOpts = append(storeOpts, badger.WithProcedure(name, proc))
	}
	for _, src := range scripts {
		storeOpts = append(storeOpts, badger.WithScript(src))
	}

	var store *badger.Store
	if cfg.Store.InMemory {
		store, err = badger.NewMemoryStore(storeOpts...)
	} else {
		store, err = badger.Open(cfg.Store.Path, storeOpts...)
	}
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Database{
		store:   store,
		cache:   mapping.NewCache(options.registry),
		cfg:     cfg,
		logger:  options.logger,
		metrics: options.metrics,
		pool:    pool,
	}, nil
}

// Close stops the worker pool and closes the store. Repositories built
// from the database fail with storage.ErrStorageClosed afterwards.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	db.pool.Release()
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// Client returns the store as the repository layer sees it.
func (db *Database) Client() storage.Client {
	return db.store
}

// Store returns the embedded store for administration.
func (db *Database) Store() *badger.Store {
	return db.store
}

// Registry returns the converter registry entities are mapped with.
func (db *Database) Registry() *convert.Registry {
	return db.cache.Registry()
}

// Cache returns the entity metadata cache shared by the database's
// repositories.
func (db *Database) Cache() *mapping.Cache {
	return db.cache
}

// Config returns the validated configuration the database was opened with.
func (db *Database) Config() *config.Config {
	return db.cfg
}

// Truncate empties every named space, several at a time, and reports how
// many tuples each one lost. Spaces that fail are missing from the counts;
// every failure is returned joined.
func (db *Database) Truncate(ctx context.Context, spaces ...string) (map[string]int, error) {
	if db.isClosed() {
		return nil, fmt.Errorf("truncate: %w", storage.ErrStorageClosed)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = make(map[string]int, len(spaces))
		errs   []error
	)
	record := func(space string, n int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("truncate %s: %w", space, err))
			return
		}
		counts[space] = n
	}
	for _, space := range spaces {
		wg.Add(1)
		if err := db.pool.Submit(func() {
			defer wg.Done()
			n, err := db.store.Truncate(ctx, space)
			record(space, n, err)
		}); err != nil {
			wg.Done()
			record(space, 0, err)
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		db.logger.Warn("truncate failed for some spaces", "failed", len(errs), "total", len(spaces))
	}
	return counts, errors.Join(errs...)
}

func (db *Database) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// NewRepository builds a repository for entity E over db, filling target's
// func fields. The repository shares db's registry, logger and metrics
// unless opts override them.
func NewRepository[E any](db *Database, target any, opts ...repository.Option) (*repository.Repository[E], error) {
	if db.isClosed() {
		return nil, fmt.Errorf("new repository: %w", storage.ErrStorageClosed)
	}

	base := []repository.Option{
		repository.WithMetadataCache(db.cache),
		repository.WithLogger(db.logger),
		repository.WithMetrics(db.metrics),
	}
	return repository.New[E](db.store, target, append(base, opts...)...)
}
