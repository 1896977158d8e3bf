package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"parley.stt.duration", m.STTDuration},
		{"parley.llm.duration", m.LLMDuration},
		{"parley.tts.duration", m.TTSDuration},
		{"parley.encode.duration", m.EncodeDuration},
		{"parley.turn.duration", m.TurnDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, StageSTT, 200*time.Millisecond)
	m.RecordStage(ctx, StageEncode, 30*time.Millisecond)
	m.RecordStage(ctx, "unknown", time.Second)

	rm := collect(t, reader)
	for name, want := range map[string]uint64{
		"parley.stt.duration":    1,
		"parley.encode.duration": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		hist := met.Data.(metricdata.Histogram[float64])
		if got := hist.DataPoints[0].Count; got != want {
			t.Errorf("%s count = %d, want %d", name, got, want)
		}
	}
	if met := findMetric(rm, "parley.llm.duration"); met != nil {
		if hist := met.Data.(metricdata.Histogram[float64]); len(hist.DataPoints) != 0 {
			t.Error("unknown stage recorded into llm histogram")
		}
	}
}

// sumFor returns the value of the data point carrying attribute key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no point with %s=%s", name, key, value)
	return 0
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "error")
	m.RecordProviderError(ctx, "elevenlabs", "tts")
	m.RecordTurn(ctx, "reply")
	m.RecordTurn(ctx, "no_speech")
	m.RecordTurn(ctx, "reply")

	rm := collect(t, reader)

	if got := sumFor(t, rm, "parley.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "parley.provider.errors", "provider", "elevenlabs"); got != 1 {
		t.Errorf("elevenlabs errors = %d, want 1", got)
	}
	if got := sumFor(t, rm, "parley.turns", "outcome", "reply"); got != 2 {
		t.Errorf("reply turns = %d, want 2", got)
	}
	if got := sumFor(t, rm, "parley.turns", "outcome", "no_speech"); got != 1 {
		t.Errorf("no_speech turns = %d, want 1", got)
	}
}

func TestCaptureCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CaptureFrames.Add(ctx, 3)
	m.VADFramesDropped.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"parley.capture.frames":     3,
		"parley.vad.frames_dropped": 1,
		"parley.active_sessions":    1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum := met.Data.(metricdata.Sum[int64])
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestQuotaGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.QuotaMinutes.Record(ctx, 5)
	m.QuotaMinutes.Record(ctx, 4)

	rm := collect(t, reader)
	met := findMetric(rm, "parley.quota.minutes")
	if met == nil {
		t.Fatal("metric not found")
	}
	g, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("metric is %T, want gauge", met.Data)
	}
	if got := g.DataPoints[0].Value; got != 4 {
		t.Errorf("gauge = %d, want 4 (last value)", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "parley.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
