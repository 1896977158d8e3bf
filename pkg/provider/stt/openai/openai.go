// Package openai provides an STT provider backed by the OpenAI audio
// transcription API. Ogg/Opus and WAV recordings are uploaded as-is.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/parley/pkg/provider/stt"
)

// Provider implements stt.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client oai.Client
	model  string
	prompt string
}

var _ stt.Provider = (*Provider)(nil)

type config struct {
	baseURL    string
	model      string
	prompt     string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the transcription model (default "whisper-1").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithPrompt sets a vocabulary hint sent with every request, such as the
// technologies and company names likely to come up in an interview.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries overrides the SDK's retry count for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs an OpenAI transcription Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: oai.AudioModelWhisper1, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		prompt: cfg.prompt,
	}, nil
}

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	payload, err := req.Audio()
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(payload), req.FileName(), req.MIMEType),
		Model:          p.model,
		ResponseFormat: oai.AudioResponseFormatJSON,
		Temperature:    oai.Float(0),
	}
	if lang := req.BaseLanguage(); lang != "" {
		params.Language = oai.String(lang)
	}
	if p.prompt != "" {
		params.Prompt = oai.String(p.prompt)
	}

	tr, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return stt.Result{Text: tr.Text, Language: req.Language}, nil
}
