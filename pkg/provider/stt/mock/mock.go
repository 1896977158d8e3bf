// Package mock provides a test double for the stt.Provider interface.
//
// Provider returns a fixed Result (or a queue of results) and records every
// request so tests can assert on the audio and language that reached the
// backend.
//
// Example:
//
//	p := &mock.Provider{TranscribeResult: stt.Result{Text: "I led the migration."}}
//	res, _ := p.Transcribe(ctx, stt.Request{AudioBase64: "AAAA", MIMEType: "audio/wav"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Request is the request passed to Transcribe.
	Request stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe when Results is empty.
	TranscribeResult stt.Result

	// Results, when non-empty, is consumed front to back: each call returns
	// and removes the first element.
	Results []stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Block, when non-nil, makes Transcribe wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// TranscribeCalls records each call to Transcribe.
	TranscribeCalls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Request: req})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TranscribeErr != nil {
		return stt.Result{}, p.TranscribeErr
	}
	if len(p.Results) > 0 {
		r := p.Results[0]
		p.Results = p.Results[1:]
		return r, nil
	}
	return p.TranscribeResult, nil
}

// CallCount returns how many times Transcribe has been called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Configurable response fields are not
// changed.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
