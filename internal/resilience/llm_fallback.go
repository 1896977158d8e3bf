package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across reply
// generation backends, each behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens uses the primary's counter. Token estimates are local and do not
// participate in failover.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// States reports the breaker state of every backend.
func (f *LLMFallback) States() map[string]State { return f.group.States() }
