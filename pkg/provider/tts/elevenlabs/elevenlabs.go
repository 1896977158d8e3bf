// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. It implements the tts.Provider
// interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// SafeVoice is the premade "Rachel" voice, available on every account.
	SafeVoice = "21m00Tcm4TlvDq8ikWAM"

	readLimit = 4 << 20
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. The WebSocket endpoint is derived
// from it by switching the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	sampleRate   int
	baseURL      string
	httpClient   *http.Client
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// New creates a new ElevenLabs Provider. apiKey must be non-empty and the
// output format must be a "pcm_<rate>" format.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// DefaultVoice implements [tts.Provider].
func (p *Provider) DefaultVoice() string { return SafeVoice }

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize opens a stream-input WebSocket, sends req.Text as a single
// fragment followed by the end-of-input marker, and collects the PCM chunks
// until the server reports the final one.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	voice := req.VoiceID
	if voice == "" {
		voice = SafeVoice
	}

	conn, resp, err := websocket.Dial(ctx, p.streamURL(voice), &websocket.DialOptions{
		HTTPHeader: http.Header{"xi-api-key": []string{p.apiKey}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("elevenlabs: voice %q: %w", voice, tts.ErrVoiceInvalid)
		}
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	msgs := []any{
		boiMessage{
			Text:          " ", // ElevenLabs requires a non-empty first text value
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      p.apiKey,
		},
		textMessage{Text: text + " ", TryTriggerGeneration: true},
		textMessage{Text: ""}, // end of input
	}
	for _, m := range msgs {
		b, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, p.classify(voice, fmt.Errorf("elevenlabs: read: %w", err))
		}
		var r audioResponse
		if err := json.Unmarshal(msg, &r); err != nil {
			continue
		}
		if r.Error != "" {
			return nil, p.classify(voice, fmt.Errorf("elevenlabs: %s: %s", r.Error, r.Message))
		}
		if r.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(r.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if r.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(pcm) == 0 {
		return nil, errors.New("elevenlabs: no audio received")
	}
	return &tts.Speech{
		Audio:    pcm,
		Format:   audio.Format{SampleRate: p.sampleRate, Channels: 1},
		Voice:    voice,
		Provider: "elevenlabs",
	}, nil
}

// classify tags voice errors with [tts.ErrVoiceInvalid].
func (p *Provider) classify(voice string, err error) error {
	if tts.IsVoiceInvalid(err) {
		return fmt.Errorf("%w (voice %q): %w", tts.ErrVoiceInvalid, voice, err)
	}
	return err
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}

	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return voices, nil
}

// ---- helpers ----

// streamURL builds the stream-input WebSocket URL for voice.
func (p *Provider) streamURL(voice string) string {
	base := p.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", base, url.PathEscape(voice), q.Encode())
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	s, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(s)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q has no valid sample rate", format)
	}
	return rate, nil
}
