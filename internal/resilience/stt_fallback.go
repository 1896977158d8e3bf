package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// transcription backends, each behind its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends the recording to the first healthy provider. A blank
// transcript is a successful result and does not trigger failover.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Result, error) {
		return p.Transcribe(ctx, req)
	})
}

// States reports the breaker state of every backend.
func (f *STTFallback) States() map[string]State { return f.group.States() }
