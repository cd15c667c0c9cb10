package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value of the data point carrying every attr.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	require.NotNil(t, met, name)
	sum, ok := met.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not a sum", name)
	for _, dp := range sum.DataPoints {
		match := true
		for _, want := range attrs {
			got, ok := dp.Attributes.Value(want.Key)
			if !ok || got != want.Value {
				match = false
				break
			}
		}
		if match {
			return dp.Value
		}
	}
	return 0
}

func TestRecordInvocation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInvocation(ctx, "FindById", "FindById", 2*time.Millisecond, nil)
	m.RecordInvocation(ctx, "FindById", "FindById", 3*time.Millisecond, nil)
	m.RecordInvocation(ctx, "Save", "Save", time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, rm, "tuplerepo.repository.calls",
		attribute.String("method", "FindById"), attribute.String("status", StatusOK)))
	assert.Equal(t, int64(1), sumFor(t, rm, "tuplerepo.repository.calls",
		attribute.String("method", "Save"), attribute.String("status", StatusError)))
	assert.Equal(t, int64(1), sumFor(t, rm, "tuplerepo.repository.errors",
		attribute.String("method", "Save")))
	assert.Equal(t, int64(0), sumFor(t, rm, "tuplerepo.repository.errors",
		attribute.String("method", "FindById")))

	met := findMetric(rm, "tuplerepo.repository.duration")
	require.NotNil(t, met)
	hist, ok := met.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestRecordStoreAndProcedure(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStoreOperation(ctx, "put", "book")
	m.RecordStoreOperation(ctx, "put", "book")
	m.RecordStoreOperation(ctx, "select", "book")
	m.RecordProcedureCall(ctx, "getInteger", nil)
	m.RecordProcedureCall(ctx, "missing", errors.New("not found"))

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "tuplerepo.store.operations",
		attribute.String("op", "put"), attribute.String("space", "book")))
	assert.Equal(t, int64(1), sumFor(t, rm, "tuplerepo.store.operations",
		attribute.String("op", "select")))
	assert.Equal(t, int64(1), sumFor(t, rm, "tuplerepo.store.procedure.calls",
		attribute.String("procedure", "missing"), attribute.String("status", StatusError)))
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	require.NotNil(t, a)
	assert.Same(t, a, b)
}
