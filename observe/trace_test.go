package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestStartInvocation(t *testing.T) {
	exp := useTestTracer(t)
	m, reader := newTestMetrics(t)

	clock := time.Unix(0, 0)
	timeNow = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}
	t.Cleanup(func() { timeNow = time.Now })

	_, finish := StartInvocation(context.Background(), m, "FindByYear", "DerivedQuery")
	finish(nil)
	_, finish = StartInvocation(context.Background(), m, "GetInteger", "CustomCall")
	finish(errors.New("procedure failed"))

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "repository.FindByYear", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("repository.kind", "DerivedQuery"))
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "procedure failed", spans[1].Status.Description)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, rm, "tuplerepo.repository.errors",
		attribute.String("method", "GetInteger")))

	met := findMetric(rm, "tuplerepo.repository.duration")
	require.NotNil(t, met)
	hist, ok := met.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	for _, dp := range hist.DataPoints {
		assert.InDelta(t, 0.005, dp.Sum, 1e-9)
	}
}

func TestStartInvocation_NilMetrics(t *testing.T) {
	exp := useTestTracer(t)

	_, finish := StartInvocation(context.Background(), nil, "Save", "Save")
	finish(nil)
	assert.Len(t, exp.GetSpans(), 1)
}

func TestLogger_IncludesTraceID(t *testing.T) {
	useTestTracer(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, span := StartSpan(context.Background(), "log-test")
	defer span.End()

	Logger(ctx, base).Info("hello")
	assert.Contains(t, buf.String(), "trace_id=")
	assert.Contains(t, buf.String(), "span_id=")
}

func TestLogger_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	l := Logger(context.Background(), base)
	assert.Same(t, base, l)
	l.Info("hello")
	assert.NotContains(t, buf.String(), "trace_id")

	assert.NotNil(t, Logger(context.Background(), nil))
}
