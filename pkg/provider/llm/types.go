package llm

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// A request with no Messages is valid: the model answers the SystemPrompt
// alone, which is how an interview's opening line is generated.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// selects the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// User is an opaque end-user identifier forwarded to providers that
	// support abuse monitoring (the interview session id).
	User string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}
