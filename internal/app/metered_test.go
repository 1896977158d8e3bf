package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/encode"
	"github.com/MrWong99/parley/pkg/provider/llm"
	llmmock "github.com/MrWong99/parley/pkg/provider/llm/mock"
	"github.com/MrWong99/parley/pkg/provider/stt"
	sttmock "github.com/MrWong99/parley/pkg/provider/stt/mock"
	"github.com/MrWong99/parley/pkg/provider/tts"
	ttsmock "github.com/MrWong99/parley/pkg/provider/tts/mock"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// counter returns the sum of the points of metric name whose attributes
// include every pair in attrs.
func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
		points:
			for _, dp := range sum.DataPoints {
				for _, kv := range attrs {
					if v, ok := dp.Attributes.Value(kv.Key); !ok || v.Emit() != kv.Value.Emit() {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func histogramCount(t *testing.T, reader *sdkmetric.ManualReader, name string) uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			var n uint64
			for _, dp := range h.DataPoints {
				n += dp.Count
			}
			return n
		}
	}
	return 0
}

func TestStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{context.Canceled, "cancelled"},
		{errors.Join(errors.New("wrapped"), context.DeadlineExceeded), "cancelled"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := status(tt.err); got != tt.want {
			t.Errorf("status(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMeteredSTT_CountsRequests(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	mock := &sttmock.Provider{TranscribeResult: stt.Result{Text: "hello"}}
	p := &meteredSTT{next: mock, name: "deepgram", metrics: m}

	ctx := context.Background()
	if res, err := p.Transcribe(ctx, stt.Request{}); err != nil || res.Text != "hello" {
		t.Fatalf("Transcribe = %q, %v", res.Text, err)
	}
	mock.TranscribeErr = errors.New("unavailable")
	if _, err := p.Transcribe(ctx, stt.Request{}); err == nil {
		t.Fatal("expected error")
	}

	prov := attribute.String("provider", "deepgram")
	if got := counter(t, reader, "parley.provider.requests", prov, attribute.String("status", "ok")); got != 1 {
		t.Errorf("ok requests = %d, want 1", got)
	}
	if got := counter(t, reader, "parley.provider.requests", prov, attribute.String("status", "error")); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := counter(t, reader, "parley.provider.errors", prov, attribute.String("kind", "stt")); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestMeteredLLM_CancelledIsNotAnError(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	mock := &llmmock.Provider{CompleteErr: context.Canceled}
	p := &meteredLLM{next: mock, name: "openai", metrics: m}

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Complete err = %v, want context.Canceled", err)
	}
	if got := counter(t, reader, "parley.provider.requests", attribute.String("status", "cancelled")); got != 1 {
		t.Errorf("cancelled requests = %d, want 1", got)
	}
	if got := counter(t, reader, "parley.provider.errors"); got != 0 {
		t.Errorf("errors = %d, want 0", got)
	}
	if n, err := p.CountTokens([]llm.Message{{Role: "user", Content: "hi"}}); err != nil || n <= 0 {
		t.Errorf("CountTokens = %d, %v", n, err)
	}
}

func TestMeteredTTS_RecordsStage(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	mock := &ttsmock.Provider{DefaultVoiceID: "rachel"}
	p := &meteredTTS{next: mock, clk: clock.Real{}, metrics: m}

	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello."}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := histogramCount(t, reader, "parley.tts.duration"); got != 1 {
		t.Errorf("tts duration samples = %d, want 1", got)
	}
	if got := p.DefaultVoice(); got != "rachel" {
		t.Errorf("DefaultVoice = %q, want rachel", got)
	}
}

func TestMeteredEncoder_RecordsStage(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	w := encode.NewWorker(encode.WithCodec(encode.WAVCodec{}))
	defer w.Close()
	e := &meteredEncoder{next: w, clk: clock.Real{}, metrics: m}

	job := &encode.Job{
		Samples: make([]float32, 4800),
		Format:  audio.Format{SampleRate: 48000, Channels: 1},
		Elapsed: 100 * time.Millisecond,
	}
	res := <-e.Submit(context.Background(), job)
	if res.Err != nil {
		t.Fatalf("encode: %v", res.Err)
	}
	if res.Recording == nil || res.Recording.MIMEType() != encode.MIMEWAV {
		t.Fatalf("recording = %+v, want WAV", res.Recording)
	}
	res.Recording.Release()
	if got := histogramCount(t, reader, "parley.encode.duration"); got != 1 {
		t.Errorf("encode duration samples = %d, want 1", got)
	}
}
