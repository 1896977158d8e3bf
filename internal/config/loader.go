package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"elevenlabs", "openai"},
	"vad": {"webrtc", "energy"},
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// ${VAR} references in the file are expanded from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTSSecondary.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	for _, req := range []struct {
		key   string
		entry ProviderEntry
	}{
		{"providers.stt", cfg.Providers.STT},
		{"providers.llm", cfg.Providers.LLM},
		{"providers.tts", cfg.Providers.TTS},
	} {
		if !req.entry.Configured() {
			errs = append(errs, fmt.Errorf("%s.name is required", req.key))
		}
	}
	if !cfg.Providers.TTSSecondary.Configured() {
		slog.Warn("providers.tts_secondary is not configured; speech has no fallback provider")
	}

	// Interview
	iv := cfg.Interview
	if iv.ContextBudget < 0 {
		errs = append(errs, fmt.Errorf("interview.context_budget must not be negative, got %d", iv.ContextBudget))
	}
	if iv.MaxReplyTokens < 0 {
		errs = append(errs, fmt.Errorf("interview.max_reply_tokens must not be negative, got %d", iv.MaxReplyTokens))
	}
	if iv.Temperature < 0 || iv.Temperature > 2 {
		errs = append(errs, fmt.Errorf("interview.temperature %.2f is out of range [0, 2]", iv.Temperature))
	}
	if iv.Tick < 0 {
		errs = append(errs, fmt.Errorf("interview.tick must not be negative, got %s", iv.Tick))
	}
	if _, ok := iv.Personas[iv.Persona]; len(iv.Personas) > 0 && iv.Persona != "" && !ok {
		slog.Warn("interview.persona has no description in interview.personas; a generic prompt is used",
			"persona", iv.Persona,
		)
	}
	for i, v := range iv.AlternateVoices {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("interview.alternate_voices[%d] is empty", i))
		}
	}

	// Audio
	a := cfg.Audio
	if a.Codec != "" && !a.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.codec %q is invalid; valid values: auto, opus, wav", a.Codec))
	}
	if a.Debounce < 0 || a.ReadyWindow < 0 || a.LevelInterval < 0 {
		errs = append(errs, errors.New("audio durations must not be negative"))
	}
	if a.VADQueueDepth < 0 {
		errs = append(errs, fmt.Errorf("audio.vad_queue_depth must not be negative, got %d", a.VADQueueDepth))
	}
	if a.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must not be negative, got %d", a.OutputSampleRate))
	}

	// Quota
	q := cfg.Quota
	if q.Backend != "" && !q.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("quota.backend %q is invalid; valid values: memory, postgres, redis", q.Backend))
	}
	if q.Backend == QuotaPostgres && q.DSN == "" {
		errs = append(errs, errors.New("quota.dsn is required when backend is postgres"))
	}
	if q.Backend == QuotaRedis && q.URL == "" {
		errs = append(errs, errors.New("quota.url is required when backend is redis"))
	}
	if q.DefaultMinutes < 0 {
		errs = append(errs, fmt.Errorf("quota.default_minutes must not be negative, got %d", q.DefaultMinutes))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
