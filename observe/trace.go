package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/poiesic/tuplerepo"

// timeNow is replaced in tests that need deterministic latencies.
var timeNow = time.Now

// Tracer returns the tracer from the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartInvocation starts a span for one repository call and returns a
// finish function that records its outcome on both the span and m. A nil m
// records only the span.
func StartInvocation(ctx context.Context, m *Metrics, method, kind string) (context.Context, func(error)) {
	ctx, span := StartSpan(ctx, "repository."+method, trace.WithAttributes(
		attribute.String("repository.method", method),
		attribute.String("repository.kind", kind),
	))
	start := timeNow()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if m != nil {
			m.RecordInvocation(ctx, method, kind, timeNow().Sub(start), err)
		}
	}
}

// Logger returns a logger carrying trace_id and span_id from the span in
// ctx. Without an active span it returns base unchanged; a nil base means
// slog.Default().
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return base.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return base
}
