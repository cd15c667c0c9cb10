package storage

import (
	"context"

	"github.com/poiesic/tuplerepo/core"
)

// Client is the tuple store boundary the repository layer talks to.
// Implementations must be safe for concurrent use.
type Client interface {
	// Get returns the tuple stored under key, or nil when there is none.
	Get(ctx context.Context, space string, key core.Tuple) (core.Tuple, error)

	// Put inserts or replaces t and returns the stored tuple.
	Put(ctx context.Context, space string, t core.Tuple) (core.Tuple, error)

	// Delete removes the tuple stored under key and returns it,
	// or nil when there was none.
	Delete(ctx context.Context, space string, key core.Tuple) (core.Tuple, error)

	// Select returns every tuple in space matching p, in primary key order.
	Select(ctx context.Context, space string, p Predicate) ([]core.Tuple, error)

	// Call runs a stored procedure. Each returned value is one tuple.
	Call(ctx context.Context, procedure string, args ...any) ([]core.Tuple, error)
}

// SpaceDefiner is implemented by clients that need spaces declared before use.
type SpaceDefiner interface {
	// DefineSpace declares space with the given primary key positions.
	// Defining an existing space with the same key is a no-op.
	DefineSpace(ctx context.Context, space string, keyFields []int) error
}

// Admin exposes maintenance operations on a store.
type Admin interface {
	// Spaces lists the defined spaces in name order.
	Spaces(ctx context.Context) ([]SpaceInfo, error)

	// Truncate removes every tuple from space and reports how many were removed.
	Truncate(ctx context.Context, space string) (int, error)
}

// SpaceInfo describes a defined space.
type SpaceInfo struct {
	Name      string
	KeyFields []int
	Count     int
}
