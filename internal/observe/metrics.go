// Package observe provides application-wide observability primitives for
// Parley: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware for the metrics/health server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. [DefaultMetrics] is the package-level
// instance; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/MrWong99/parley"

// Stage names used with [Metrics.RecordStage].
const (
	StageSTT    = "stt"
	StageLLM    = "llm"
	StageTTS    = "tts"
	StageEncode = "encode"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	STTDuration    metric.Float64Histogram
	LLMDuration    metric.Float64Histogram
	TTSDuration    metric.Float64Histogram
	EncodeDuration metric.Float64Histogram

	// TurnDuration spans transcription through the reply being handed to
	// playback.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Turns counts finished turns by outcome (reply, no_speech, error, stale).
	Turns metric.Int64Counter

	// CaptureFrames counts microphone frames accepted into the capture buffer.
	CaptureFrames metric.Int64Counter

	// VADFramesDropped counts frames the VAD tap discarded because its queue
	// was full.
	VADFramesDropped metric.Int64Counter

	// --- Gauges ---

	// QuotaMinutes is the locally tracked balance of the active interview.
	QuotaMinutes metric.Int64Gauge

	// ActiveSessions tracks interviews in progress.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "parley.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "parley.llm.duration", "Latency of reply generation."},
		{&met.TTSDuration, "parley.tts.duration", "Latency of speech synthesis including fallbacks."},
		{&met.EncodeDuration, "parley.encode.duration", "Latency of encoding a finished recording."},
		{&met.TurnDuration, "parley.turn.duration", "Latency from transcription start to reply playback request."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("parley.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("parley.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("parley.turns",
		metric.WithDescription("Total interview turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFrames, err = m.Int64Counter("parley.capture.frames",
		metric.WithDescription("Microphone frames captured while recording."),
	); err != nil {
		return nil, err
	}
	if met.VADFramesDropped, err = m.Int64Counter("parley.vad.frames_dropped",
		metric.WithDescription("Frames dropped by the voice activity tap under backpressure."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.QuotaMinutes, err = m.Int64Gauge("parley.quota.minutes",
		metric.WithDescription("Minutes remaining in the active interview."),
		metric.WithUnit("min"),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.active_sessions",
		metric.WithDescription("Number of interviews in progress."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordStage records d on the histogram for stage. Unknown stages are
// ignored.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	var h metric.Float64Histogram
	switch stage {
	case StageSTT:
		h = m.STTDuration
	case StageLLM:
		h = m.LLMDuration
	case StageTTS:
		h = m.TTSDuration
	case StageEncode:
		h = m.EncodeDuration
	default:
		return
	}
	h.Record(ctx, d.Seconds())
}

// RecordTurn increments the turn counter for outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
