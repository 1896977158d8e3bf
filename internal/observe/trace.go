package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/parley"

// Span names for one interview turn.
const (
	SpanTurn       = "interview.turn"
	SpanTranscribe = "interview.transcribe"
	SpanReply      = "interview.reply"
	SpanSynthesize = "playback.synthesize"
)

// Attribute keys shared by turn spans and log records.
const (
	AttrSessionID = attribute.Key("parley.session_id")
	AttrToken     = attribute.Key("parley.token")
	AttrPersona   = attribute.Key("parley.persona")
	AttrProvider  = attribute.Key("parley.provider")
)

// Tracer returns the tracer of the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span under ctx. The caller ends it, usually through
// [EndSpan].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan marks span as failed when err is set and ends it. Cancellation is
// recorded as an event, not an error, because superseded turns are normal.
func EndSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		span.AddEvent("cancelled")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace id in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return slog.Default()
	}
	return slog.Default().With(
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}
