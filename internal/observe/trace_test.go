package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test. Tests calling it must not run in parallel.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
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

// captureLogs routes the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_CarriesTurnAttributes(t *testing.T) {
	exp := useTracer(t)

	ctx, span := StartSpan(context.Background(), SpanTranscribe,
		AttrSessionID.String("s-1"),
		AttrToken.Int64(3),
	)
	if CorrelationID(ctx) == "" {
		t.Error("span context has no trace id")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != SpanTranscribe {
		t.Errorf("name = %q, want %q", got.Name, SpanTranscribe)
	}
	if !slices.Contains(got.Attributes, AttrSessionID.String("s-1")) {
		t.Errorf("attributes = %v, missing session id", got.Attributes)
	}
	if !slices.Contains(got.Attributes, AttrToken.Int64(3)) {
		t.Errorf("attributes = %v, missing token", got.Attributes)
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	exp := useTracer(t)

	ctx, turn := StartSpan(context.Background(), SpanTurn)
	_, reply := StartSpan(ctx, SpanReply)
	reply.End()
	turn.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Errorf("%s is not a child of %s", child.Name, parent.Name)
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("child span started a new trace")
	}
}

func TestEndSpan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvent  string
	}{
		{name: "success", err: nil, wantStatus: codes.Unset},
		{name: "cancelled turn", err: fmt.Errorf("interview: reply: %w", context.Canceled), wantStatus: codes.Unset, wantEvent: "cancelled"},
		{name: "provider failure", err: errors.New("stt: 503"), wantStatus: codes.Error, wantEvent: "exception"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := useTracer(t)

			_, span := StartSpan(context.Background(), SpanSynthesize)
			EndSpan(span, tt.err)

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if got := spans[0].Status.Code; got != tt.wantStatus {
				t.Errorf("status = %v, want %v", got, tt.wantStatus)
			}
			var events []string
			for _, e := range spans[0].Events {
				events = append(events, e.Name)
			}
			if tt.wantEvent == "" && len(events) != 0 {
				t.Errorf("events = %v, want none", events)
			}
			if tt.wantEvent != "" && !slices.Contains(events, tt.wantEvent) {
				t.Errorf("events = %v, want %q", events, tt.wantEvent)
			}
		})
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	t.Run("inside span", func(t *testing.T) {
		buf := captureLogs(t)
		ctx, span := StartSpan(context.Background(), SpanTurn)
		defer span.End()

		Logger(ctx).Info("turn done")
		out := buf.String()
		if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) {
			t.Errorf("log line %q lacks the span's trace id", out)
		}
		if !strings.Contains(out, "span_id=") {
			t.Errorf("log line %q lacks span_id", out)
		}
	})

	t.Run("no span", func(t *testing.T) {
		buf := captureLogs(t)
		Logger(context.Background()).Info("idle")
		if out := buf.String(); strings.Contains(out, "trace_id") {
			t.Errorf("log line %q has a trace id without a span", out)
		}
	})
}
