// Package mock provides a test double for the tts.Provider interface.
//
// Provider returns a configurable [tts.Speech] and records every request so
// that tests can verify which voices were tried, and in which order.
//
// Example:
//
//	p := &mock.Provider{
//	    Name:           "primary",
//	    DefaultVoiceID: "safe",
//	    VoiceErrs:      map[string]error{"retired": tts.ErrVoiceInvalid},
//	}
//	speech, err := p.Synthesize(ctx, tts.Request{Text: "hello", VoiceID: "retired"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Request is the request passed to Synthesize.
	Request tts.Request
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Name is reported as Speech.Provider. Defaults to "mock".
	Name string

	// DefaultVoiceID is returned by DefaultVoice.
	DefaultVoiceID string

	// SynthesizeResult, if non-nil, is returned (as a copy with Voice and
	// Provider filled in) by successful Synthesize calls. When nil, 100 ms of
	// 16 kHz mono silence is returned.
	SynthesizeResult *tts.Speech

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// VoiceErrs maps voice IDs to the error Synthesize returns for them.
	// Checked before SynthesizeErr.
	VoiceErrs map[string]error

	// Block, when non-nil, makes Synthesize wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr is returned by ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records each call to Synthesize.
	SynthesizeCalls []SynthesizeCall

	// CallCountListVoices records how many times ListVoices was called.
	CallCountListVoices int
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Request: req})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	voice := req.VoiceID
	if voice == "" {
		voice = p.DefaultVoiceID
	}
	if err, ok := p.VoiceErrs[voice]; ok && err != nil {
		return nil, err
	}
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}

	var out tts.Speech
	if p.SynthesizeResult != nil {
		out = *p.SynthesizeResult
		out.Audio = append([]byte(nil), p.SynthesizeResult.Audio...)
	} else {
		out = tts.Speech{
			Audio:  make([]byte, 3200),
			Format: audio.Format{SampleRate: 16000, Channels: 1},
		}
	}
	out.Voice = voice
	out.Provider = p.Name
	if out.Provider == "" {
		out.Provider = "mock"
	}
	return &out, nil
}

// DefaultVoice implements [tts.Provider].
func (p *Provider) DefaultVoice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DefaultVoiceID
}

// ListVoices implements [tts.VoiceLister].
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountListVoices++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Voices returns the voice IDs of every Synthesize call so far, in order.
func (p *Provider) Voices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Request.VoiceID
	}
	return out
}

// CallCount returns how many times Synthesize has been called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Configurable response fields are not
// changed.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.CallCountListVoices = 0
}
