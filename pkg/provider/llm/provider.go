// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// completion call so that the interview orchestrator can generate the
// officer's next line without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
//
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return as quickly as possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens that the given message list
	// would consume in the model's context window. The orchestrator uses it to
	// drop the oldest turns before a request would overflow the budget.
	//
	// The result need not be exact but should not undercount.
	CountTokens(messages []Message) (int, error)
}

// EstimateTokens is the ~4 characters per token approximation shared by the
// bundled providers, plus a fixed per-message overhead for role and framing.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total
}
