package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// ReplyRequest is everything the reply generator sees for one turn. An empty
// Turns slice asks for the opening line.
type ReplyRequest struct {
	Turns     []Turn
	PersonaID string
	Language  string
	Skills    []string
	SessionID string
}

// Replier produces the interviewer's next line.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// DefaultContextBudget is the token budget for the conversation history sent
// with each reply request.
const DefaultContextBudget = 3000

const defaultOpening = "Greet the candidate briefly and ask your first question."

// ReplierOption configures an [LLMReplier].
type ReplierOption func(*LLMReplier)

// WithPersonas maps persona ids to the role description used in the system
// prompt, e.g. "visa-officer" to "a consular officer at a visa interview".
func WithPersonas(p map[string]string) ReplierOption {
	return func(r *LLMReplier) {
		for k, v := range p {
			r.personas[k] = v
		}
	}
}

// WithOpeningPrompt overrides the instruction used when there is no history.
func WithOpeningPrompt(s string) ReplierOption {
	return func(r *LLMReplier) {
		if s != "" {
			r.opening = s
		}
	}
}

// WithContextBudget sets the maximum tokens of history sent per request.
func WithContextBudget(tokens int) ReplierOption {
	return func(r *LLMReplier) {
		if tokens > 0 {
			r.budget = tokens
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ReplierOption {
	return func(r *LLMReplier) { r.temperature = t }
}

// WithMaxReplyTokens caps the length of each reply.
func WithMaxReplyTokens(n int) ReplierOption {
	return func(r *LLMReplier) { r.maxTokens = n }
}

// LLMReplier is a [Replier] backed by an [llm.Provider].
type LLMReplier struct {
	llm         llm.Provider
	personas    map[string]string
	opening     string
	budget      int
	temperature float64
	maxTokens   int
}

var _ Replier = (*LLMReplier)(nil)

// NewLLMReplier wraps p.
func NewLLMReplier(p llm.Provider, opts ...ReplierOption) *LLMReplier {
	r := &LLMReplier{
		llm:       p,
		personas:  make(map[string]string),
		opening:   defaultOpening,
		budget:    DefaultContextBudget,
		maxTokens: 200,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reply implements [Replier]. The oldest turns are dropped until the history
// fits the context budget; the newest turn is always kept.
func (r *LLMReplier) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	msgs := make([]llm.Message, 0, len(req.Turns))
	for _, t := range req.Turns {
		role := llm.RoleUser
		if t.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	msgs, err := r.fit(msgs)
	if err != nil {
		return "", err
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: r.systemPrompt(req),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
		User:         req.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("interview: reply: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("interview: reply: empty completion")
	}
	return text, nil
}

func (r *LLMReplier) fit(msgs []llm.Message) ([]llm.Message, error) {
	for len(msgs) > 1 {
		n, err := r.llm.CountTokens(msgs)
		if err != nil {
			return nil, fmt.Errorf("interview: count tokens: %w", err)
		}
		if n <= r.budget {
			break
		}
		msgs = msgs[1:]
	}
	return msgs, nil
}

func (r *LLMReplier) systemPrompt(req ReplyRequest) string {
	persona, ok := r.personas[req.PersonaID]
	if !ok {
		persona = "an interviewer"
		if req.PersonaID != "" {
			persona = fmt.Sprintf("an interviewer playing the role %q", req.PersonaID)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s conducting a spoken practice interview.", persona)
	if req.Language != "" {
		fmt.Fprintf(&b, " Speak only %s.", req.Language)
	}
	if len(req.Skills) > 0 {
		fmt.Fprintf(&b, " Probe these skills: %s.", strings.Join(req.Skills, ", "))
	}
	b.WriteString(" Your words are read aloud, so use plain sentences without lists or markup." +
		" Keep each reply to one or two sentences and ask one question at a time.")
	if len(req.Turns) == 0 {
		b.WriteString(" ")
		b.WriteString(r.opening)
	}
	return b.String()
}
