// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. Fields are safe to set before calling any method.
//
// Example:
//
//	p := &mock.Provider{
//	    Replies: []string{"Welcome! Tell me about yourself.", "Why this role?"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when Replies is empty.
	CompleteResponse *llm.CompletionResponse

	// Replies, when non-empty, is consumed front to back: each Complete call
	// returns the next element as Content.
	Replies []string

	// CompleteErr, if non-nil, is returned by every Complete call.
	CompleteErr error

	// Block, when non-nil, makes Complete wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// TokensPerMessage, if positive, makes CountTokens return
	// len(messages)*TokensPerMessage instead of the shared estimate.
	TokensPerMessage int

	// CompleteCalls records each call to Complete.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	req.Messages = append([]llm.Message(nil), req.Messages...)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
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
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Replies) > 0 {
		r := p.Replies[0]
		p.Replies = p.Replies[1:]
		return &llm.CompletionResponse{Content: r}, nil
	}
	if p.CompleteResponse != nil {
		out := *p.CompleteResponse
		return &out, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CountTokens implements [llm.Provider].
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	per := p.TokensPerMessage
	p.mu.Unlock()
	if per > 0 {
		return len(messages) * per, nil
	}
	return llm.EstimateTokens(messages), nil
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// CallCount returns how many times Complete has been called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
