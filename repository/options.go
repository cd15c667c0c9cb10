package repository

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/tuplerepo/convert"
	"github.com/poiesic/tuplerepo/mapping"
	"github.com/poiesic/tuplerepo/observe"
)

// Option configures a Repository.
type Option func(*settings) error

type settings struct {
	cache   *mapping.Cache
	logger  *slog.Logger
	metrics *observe.Metrics
}

// WithRegistry maps entities with reg through a metadata cache private to
// this repository. Default is the process-wide cache over convert.Default().
func WithRegistry(reg *convert.Registry) Option {
	return func(s *settings) error {
		if reg == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		s.cache = mapping.NewCache(reg)
		return nil
	}
}

// WithMetadataCache shares an existing metadata cache, and its registry,
// between repositories.
func WithMetadataCache(cache *mapping.Cache) Option {
	return func(s *settings) error {
		if cache == nil {
			return fmt.Errorf("metadata cache cannot be nil")
		}
		s.cache = cache
		return nil
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics records invocations on m. Default is observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *settings) error {
		s.metrics = m
		return nil
	}
}
