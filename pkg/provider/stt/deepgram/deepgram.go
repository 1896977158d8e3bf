// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface.
//
// A finished recording is streamed over the socket in chunks followed by a
// CloseStream message; the final results are joined into one transcript.
// Deepgram detects Ogg/Opus and WAV containers on its own, so no encoding
// parameters are sent.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkSize bounds each binary message sent to Deepgram.
	chunkSize = 16 << 10
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition
// (e.g., "en", "de-DE"). A request's own Language takes precedence.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeyterms adds vocabulary hints (company names, technologies) that
// improve recognition of uncommon words.
func WithKeyterms(terms ...string) Option {
	return func(p *Provider) {
		p.keyterms = append(p.keyterms, terms...)
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	model    string
	language string
	keyterms []string
	endpoint string
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	payload, err := req.Audio()
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: %w", err)
	}

	wsURL, err := p.buildURL(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	// Writes run concurrently with reads so a large recording cannot
	// deadlock against a server that starts replying early.
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.send(ctx, conn, payload)
	}()

	var (
		parts   []string
		confSum float64
		n       int
		dur     time.Duration
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return stt.Result{}, fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if r.Type == "Metadata" {
			dur = time.Duration(r.Duration * float64(time.Second))
			break
		}
		if !r.IsFinal || len(r.Channel.Alternatives) == 0 {
			continue
		}
		alt := r.Channel.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			parts = append(parts, text)
			confSum += alt.Confidence
			n++
		}
	}
	if err := <-writeErr; err != nil {
		return stt.Result{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	res := stt.Result{
		Text:     strings.Join(parts, " "),
		Language: req.Language,
		Duration: dur,
	}
	if n > 0 {
		res.Confidence = confSum / float64(n)
	}
	return res, nil
}

// send streams payload in chunks and asks Deepgram to finalise.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	for len(payload) > 0 {
		n := min(chunkSize, len(payload))
		if err := conn.Write(ctx, websocket.MessageBinary, payload[:n]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
		payload = payload[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// buildURL constructs the Deepgram endpoint URL for req.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	for _, kt := range p.keyterms {
		q.Add("keyterm", kt)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of Results and Metadata events.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse decodes a message and reports whether it is a
// Results or Metadata event.
func parseDeepgramResponse(data []byte) (deepgramResponse, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return deepgramResponse{}, false
	}
	if resp.Type != "Results" && resp.Type != "Metadata" {
		return deepgramResponse{}, false
	}
	return resp, true
}
