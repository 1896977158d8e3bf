// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/parley/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across calls; each call gets its own context.
type NativeProvider struct {
	mu       sync.Mutex
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code used when a request carries none
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Calling Close more than once is safe.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe implements [stt.Provider]. Inference is CPU bound and runs on
// the calling goroutine; ctx is only checked before work starts.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	samples, err := loadSamples(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	lang := whisperLanguage(req, p.language)
	if !hasSpeech(samples) {
		return stt.Result{Language: lang}, nil
	}

	text, err := p.infer(samples, lang)
	if err != nil {
		return stt.Result{}, err
	}
	return stt.Result{
		Text:     text,
		Language: lang,
		Duration: time.Duration(len(samples)) * time.Second / sampleRate,
	}, nil
}

// infer runs whisper.cpp inference on samples using a fresh context and
// returns the concatenated segment text.
func (p *NativeProvider) infer(samples []float32, lang string) (string, error) {
	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return "", errors.New("whisper: provider is closed")
	}

	// Contexts are not thread-safe; the model is.
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
