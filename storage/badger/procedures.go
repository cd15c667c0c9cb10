package badger

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/storage"
)

// Procedure is a stored procedure implemented in Go. It runs with full
// access to the store and returns one tuple per result value.
type Procedure func(ctx context.Context, client storage.Client, args ...any) ([]core.Tuple, error)

type procedures struct {
	mu     sync.RWMutex
	byName map[string]Procedure
}

func newProcedures() *procedures {
	return &procedures{byName: make(map[string]Procedure)}
}

func (p *procedures) lookup(name string) (Procedure, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	proc, ok := p.byName[name]
	return proc, ok
}

// RegisterProcedure makes proc callable through Call. Registering a name
// twice replaces the earlier procedure.
func (s *Store) RegisterProcedure(name string, proc Procedure) error {
	if name == "" || proc == nil {
		return fmt.Errorf("%w: procedure needs a name and a body", storage.ErrInvalidQuery)
	}
	s.procs.mu.Lock()
	defer s.procs.mu.Unlock()
	if _, ok := s.procs.byName[name]; ok {
		s.logger.Warn("replacing procedure", "procedure", name)
	}
	s.procs.byName[name] = proc
	return nil
}
