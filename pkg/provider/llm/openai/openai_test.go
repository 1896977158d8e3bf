package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			got, err := convertMessage(llm.Message{Role: tt.role, Content: "hi"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown role")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.role {
			case llm.RoleSystem:
				if got.OfSystem == nil {
					t.Error("expected OfSystem to be set")
				}
			case llm.RoleUser:
				if got.OfUser == nil {
					t.Error("expected OfUser to be set")
				}
			case llm.RoleAssistant:
				if got.OfAssistant == nil {
					t.Error("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Walk me through your last project."}}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 8, "total_tokens": 48}
		}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a hiring manager.",
		Messages: []llm.Message{
			{Role: llm.RoleAssistant, Content: "Welcome."},
			{Role: llm.RoleUser, Content: "Thanks, glad to be here."},
		},
		Temperature: 0.7,
		User:        "session-1",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Walk me through your last project." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 48 {
		t.Errorf("TotalTokens = %d, want 48", resp.Usage.TotalTokens)
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3 (system + history)", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
	if body["user"] != "session-1" {
		t.Errorf("user = %v, want session-1", body["user"])
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	p, _ := New("k", "gpt-4o")
	n, err := p.CountTokens([]llm.Message{{Role: llm.RoleUser, Content: "12345678"}})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 6 {
		t.Errorf("CountTokens = %d, want 6", n)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("expected error for empty model")
	}
}
