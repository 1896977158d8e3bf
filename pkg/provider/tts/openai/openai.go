// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested as raw PCM, which OpenAI delivers as 24 kHz mono
// signed 16-bit little-endian samples.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// SafeVoice is the built-in voice every OpenAI account can use.
const SafeVoice = "alloy"

// pcmRate is the fixed sample rate of OpenAI's "pcm" response format.
const pcmRate = 24000

// builtinVoices lists the voices accepted by the speech endpoint.
var builtinVoices = []oai.AudioSpeechNewParamsVoice{
	oai.AudioSpeechNewParamsVoiceAlloy,
	oai.AudioSpeechNewParamsVoiceAsh,
	oai.AudioSpeechNewParamsVoiceBallad,
	oai.AudioSpeechNewParamsVoiceCoral,
	oai.AudioSpeechNewParamsVoiceEcho,
	oai.AudioSpeechNewParamsVoiceSage,
	oai.AudioSpeechNewParamsVoiceShimmer,
	oai.AudioSpeechNewParamsVoiceVerse,
}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
	speed  float64
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

type config struct {
	baseURL    string
	model      string
	speed      float64
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

// WithModel selects the speech model (default "tts-1").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithSpeed sets the playback speed multiplier (0.25 to 4.0).
func WithSpeed(speed float64) Option {
	return func(c *config) {
		c.speed = speed
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

// New constructs an OpenAI speech Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: oai.SpeechModelTTS1, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.speed != 0 && (cfg.speed < 0.25 || cfg.speed > 4) {
		return nil, fmt.Errorf("openai tts: speed %.2f out of range [0.25, 4]", cfg.speed)
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
		speed:  cfg.speed,
	}, nil
}

// DefaultVoice implements [tts.Provider].
func (p *Provider) DefaultVoice() string { return SafeVoice }

// Synthesize implements [tts.Provider]. The whole PCM body is read before
// returning.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}
	voice := req.VoiceID
	if voice == "" {
		voice = SafeVoice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.speed != 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, classify(voice, err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("openai tts: no audio received")
	}
	return &tts.Speech{
		Audio:    pcm,
		Format:   audio.Format{SampleRate: pcmRate, Channels: 1},
		Voice:    voice,
		Provider: "openai",
	}, nil
}

// ListVoices implements [tts.VoiceLister]. OpenAI exposes no voice listing
// endpoint, so the built-in set is returned.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	voices := make([]tts.Voice, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		voices = append(voices, tts.Voice{
			ID:       string(v),
			Name:     string(v),
			Provider: "openai",
		})
	}
	return voices, nil
}

// classify maps API errors that name the voice parameter to
// [tts.ErrVoiceInvalid].
func classify(voice string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) && apiErr.Param == "voice" {
		return fmt.Errorf("openai tts: voice %q: %w: %w", voice, tts.ErrVoiceInvalid, err)
	}
	if tts.IsVoiceInvalid(err) {
		return fmt.Errorf("openai tts: voice %q: %w: %w", voice, tts.ErrVoiceInvalid, err)
	}
	return fmt.Errorf("openai tts: synthesize: %w", err)
}
