// Package observe provides the OpenTelemetry metrics and tracing used by
// repositories and the embedded store.
//
// Instruments are created from a [metric.MeterProvider]. A package-level
// default ([DefaultMetrics]) uses the global provider; tests should use
// [NewMetrics] with their own provider so results do not leak between tests.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all tuplerepo metrics.
const meterName = "github.com/poiesic/tuplerepo"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the metric instruments. The OTel types handle their own
// synchronisation.
type Metrics struct {
	// RepositoryCalls counts repository method invocations by method, kind
	// and status.
	RepositoryCalls metric.Int64Counter

	// RepositoryDuration tracks repository method latency in seconds.
	RepositoryDuration metric.Float64Histogram

	// RepositoryErrors counts failed invocations by method and kind.
	RepositoryErrors metric.Int64Counter

	// StoreOperations counts store boundary calls by operation and space.
	StoreOperations metric.Int64Counter

	// ProcedureCalls counts stored procedure calls by name and status.
	ProcedureCalls metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds, tuned for an
// embedded store where most calls finish well under a millisecond.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1, 0.5, 1,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RepositoryCalls, err = m.Int64Counter("tuplerepo.repository.calls",
		metric.WithDescription("Repository method invocations by method, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.RepositoryDuration, err = m.Float64Histogram("tuplerepo.repository.duration",
		metric.WithDescription("Latency of repository method invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RepositoryErrors, err = m.Int64Counter("tuplerepo.repository.errors",
		metric.WithDescription("Failed repository method invocations by method and kind."),
	); err != nil {
		return nil, err
	}
	if met.StoreOperations, err = m.Int64Counter("tuplerepo.store.operations",
		metric.WithDescription("Store calls by operation and space."),
	); err != nil {
		return nil, err
	}
	if met.ProcedureCalls, err = m.Int64Counter("tuplerepo.store.procedure.calls",
		metric.WithDescription("Stored procedure calls by name and status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from
// [otel.GetMeterProvider] on first use. Panics if instrument creation fails,
// which the global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordInvocation records one repository call: the call counter, the
// latency histogram and, when err is non-nil, the error counter.
func (m *Metrics) RecordInvocation(ctx context.Context, method, kind string, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.RepositoryCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.RepositoryDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("kind", kind),
	))
	if err != nil {
		m.RepositoryErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("kind", kind),
		))
	}
}

// RecordStoreOperation counts one store call.
func (m *Metrics) RecordStoreOperation(ctx context.Context, op, space string) {
	m.StoreOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("space", space),
	))
}

// RecordProcedureCall counts one stored procedure call.
func (m *Metrics) RecordProcedureCall(ctx context.Context, name string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.ProcedureCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("procedure", name),
		attribute.String("status", status),
	))
}
