package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/recording"
	"github.com/MrWong99/parley/pkg/audio/capture"
	"github.com/MrWong99/parley/pkg/audio/encode"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func record(ctx context.Context, m *observe.Metrics, provider, kind string, err error) {
	s := status(err)
	m.RecordProviderRequest(ctx, provider, kind, s)
	if s == "error" {
		m.RecordProviderError(ctx, provider, kind)
	}
}

// meteredSTT counts requests against the configured transcription provider.
type meteredSTT struct {
	next    stt.Provider
	name    string
	metrics *observe.Metrics
}

var _ stt.Provider = (*meteredSTT)(nil)

func (p *meteredSTT) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	res, err := p.next.Transcribe(ctx, req)
	record(ctx, p.metrics, p.name, "stt", err)
	return res, err
}

// meteredLLM counts requests against the configured language model.
type meteredLLM struct {
	next    llm.Provider
	name    string
	metrics *observe.Metrics
}

var _ llm.Provider = (*meteredLLM)(nil)

func (p *meteredLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.next.Complete(ctx, req)
	record(ctx, p.metrics, p.name, "llm", err)
	return resp, err
}

func (p *meteredLLM) CountTokens(messages []llm.Message) (int, error) {
	return p.next.CountTokens(messages)
}

// meteredTTS times whole synthesis calls, fallbacks included. Per-provider
// counts come from the synthesis chain's attempt hook.
type meteredTTS struct {
	next    tts.Provider
	clk     clock.Clock
	metrics *observe.Metrics
}

var _ tts.Provider = (*meteredTTS)(nil)

func (p *meteredTTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	start := p.clk.Now()
	speech, err := p.next.Synthesize(ctx, req)
	p.metrics.RecordStage(ctx, observe.StageTTS, p.clk.Now().Sub(start))
	return speech, err
}

func (p *meteredTTS) DefaultVoice() string { return p.next.DefaultVoice() }

// meteredEncoder records how long each encode job took, queueing included.
type meteredEncoder struct {
	next    recording.Encoder
	clk     clock.Clock
	metrics *observe.Metrics
}

var _ recording.Encoder = (*meteredEncoder)(nil)

func (e *meteredEncoder) Submit(ctx context.Context, job *encode.Job) <-chan encode.Result {
	start := e.clk.Now()
	in := e.next.Submit(ctx, job)
	out := make(chan encode.Result, 1)
	go func() {
		res := <-in
		e.metrics.RecordStage(context.WithoutCancel(ctx), observe.StageEncode, e.clk.Now().Sub(start))
		out <- res
	}()
	return out
}

// meteredRecorder counts captured frames and VAD drops per recording.
type meteredRecorder struct {
	next    *capture.Capturer
	tap     *capture.VADTap
	metrics *observe.Metrics

	dropped atomic.Int64
}

var _ recording.Recorder = (*meteredRecorder)(nil)

func (r *meteredRecorder) Start(ctx context.Context) error {
	return r.next.Start(ctx)
}

func (r *meteredRecorder) Stop() (*capture.Buffer, time.Duration, error) {
	buf, elapsed, err := r.next.Stop()
	if err != nil {
		return buf, elapsed, err
	}
	ctx := context.Background()
	r.metrics.CaptureFrames.Add(ctx, int64(buf.Len()))
	if r.tap != nil {
		d := r.tap.Dropped()
		if delta := d - r.dropped.Swap(d); delta > 0 {
			r.metrics.VADFramesDropped.Add(ctx, delta)
		}
	}
	return buf, elapsed, nil
}
