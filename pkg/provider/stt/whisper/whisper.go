// Package whisper provides local whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. [NativeProvider] links whisper.cpp directly through
// its CGO bindings. Both decode the recording (Ogg/Opus or WAV) to 16 kHz mono
// first, because that is the only format whisper.cpp accepts, and skip
// inference entirely when the recording holds no speech energy.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, stt.Request{AudioBase64: b64, MIMEType: "audio/wav"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/encode"
	"github.com/MrWong99/parley/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code used when a request carries none
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Provider]. The recording is re-encoded as a
// 16 kHz WAV file before upload.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	samples, err := loadSamples(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	lang := whisperLanguage(req, p.language)
	if !hasSpeech(samples) {
		return stt.Result{Language: lang}, nil
	}

	wav, err := encode.EncodeWAV(audio.FloatToInt16(samples), sampleRate)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: encode wav: %w", err)
	}
	text, err := p.infer(ctx, wav, lang)
	if err != nil {
		return stt.Result{}, err
	}
	return stt.Result{
		Text:     strings.TrimSpace(text),
		Language: lang,
		Duration: time.Duration(len(samples)) * time.Second / sampleRate,
	}, nil
}

// infer POSTs wav to the whisper.cpp /inference endpoint as
// multipart/form-data and returns the transcribed text.
func (p *Provider) infer(ctx context.Context, wav []byte, lang string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
		"language":        lang,
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper: server error: %s", result.Error)
	}
	return result.Text, nil
}
