// Package config provides the configuration schema, loader, and provider registry
// for the Parley interview coach.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// QuotaBackend selects where remaining interview minutes are kept.
type QuotaBackend string

const (
	// QuotaMemory keeps balances in process. They reset on restart.
	QuotaMemory QuotaBackend = "memory"

	// QuotaPostgres keeps balances in a PostgreSQL table.
	QuotaPostgres QuotaBackend = "postgres"

	// QuotaRedis keeps balances as Redis integer keys.
	QuotaRedis QuotaBackend = "redis"
)

// IsValid reports whether b is a recognised quota backend.
func (b QuotaBackend) IsValid() bool {
	switch b {
	case QuotaMemory, QuotaPostgres, QuotaRedis:
		return true
	}
	return false
}

// Codec forces the recording container. Auto probes for Opus and falls back
// to WAV.
type Codec string

const (
	CodecAuto Codec = "auto"
	CodecOpus Codec = "opus"
	CodecWAV  Codec = "wav"
)

// IsValid reports whether c is a recognised codec choice.
func (c Codec) IsValid() bool {
	switch c {
	case CodecAuto, CodecOpus, CodecWAV:
		return true
	}
	return false
}

// Config is the root configuration structure for Parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
	Audio     AudioConfig     `yaml:"audio"`
	Quota     QuotaConfig     `yaml:"quota"`
}

// ServerConfig holds the optional metrics/health listener and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// TTSSecondary is the last synthesis stage, used with its own safe voice
	// once the primary provider gives up.
	TTSSecondary ProviderEntry `yaml:"tts_secondary"`

	VAD ProviderEntry `yaml:"vad"`

	// STTFallback and LLMFallback are tried when the primary's circuit
	// breaker is open or its call fails.
	STTFallback ProviderEntry `yaml:"stt_fallback"`
	LLMFallback ProviderEntry `yaml:"llm_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or lists.
	Options map[string]any `yaml:"options"`
}

// Configured reports whether the entry names a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// InterviewConfig describes the officer and the candidate's session.
type InterviewConfig struct {
	// Persona selects the officer persona by id.
	Persona string `yaml:"persona"`

	// Personas maps persona ids to the description used in the system prompt.
	Personas map[string]string `yaml:"personas"`

	// Language is the BCP-47 tag used for recognition, replies and speech.
	Language string `yaml:"language"`

	// Skills are the topics the officer probes.
	Skills []string `yaml:"skills"`

	// Vocabulary lists terms that recognition tends to mishear, such as
	// product or university names. Transcripts are corrected toward them.
	Vocabulary []string `yaml:"vocabulary"`

	// Account keys the minute balance in the quota store.
	Account string `yaml:"account"`

	// VoiceID is the primary TTS voice. Empty uses the provider default.
	VoiceID string `yaml:"voice_id"`

	// AlternateVoices are tried on the primary provider after its safe voice.
	AlternateVoices []string `yaml:"alternate_voices"`

	// OpeningPrompt overrides the instruction for the first line.
	OpeningPrompt string `yaml:"opening_prompt"`

	// ContextBudget caps the tokens of history sent with each reply request.
	ContextBudget int `yaml:"context_budget"`

	// Temperature is the sampling temperature for replies. Zero uses the
	// provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxReplyTokens caps each reply.
	MaxReplyTokens int `yaml:"max_reply_tokens"`

	// Tick is the quota decrement period. Default: one minute.
	Tick time.Duration `yaml:"tick"`
}

// AudioConfig tunes capture, recording and playback.
type AudioConfig struct {
	// Codec forces the recording container. Default: auto.
	Codec Codec `yaml:"codec"`

	// Debounce is the minimum spacing between accepted record taps.
	Debounce time.Duration `yaml:"debounce"`

	// ReadyWindow is how long the ready state is shown after a transcript.
	ReadyWindow time.Duration `yaml:"ready_window"`

	// VADQueueDepth bounds frames waiting for the VAD worker.
	VADQueueDepth int `yaml:"vad_queue_depth"`

	// LevelInterval is the loudness meter cadence.
	LevelInterval time.Duration `yaml:"level_interval"`

	// OutputSampleRate is the playback device rate. Default: 48000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// RequireGesture blocks playback until the user presses the unlock key.
	RequireGesture bool `yaml:"require_gesture"`

	// MobileRecovery arms one-shot resume on the first gesture after an
	// interruption.
	MobileRecovery bool `yaml:"mobile_recovery"`
}

// QuotaConfig selects the minute balance store.
type QuotaConfig struct {
	// Backend defaults to memory.
	Backend QuotaBackend `yaml:"backend"`

	// DSN is the PostgreSQL connection string for the postgres backend.
	DSN string `yaml:"dsn"`

	// URL is the Redis URL (redis://host:port/db) for the redis backend.
	URL string `yaml:"url"`

	// DefaultMinutes is the balance given to an account seen for the first time.
	DefaultMinutes int `yaml:"default_minutes"`
}

// Defaults used by [ApplyDefaults].
const (
	DefaultLanguage       = "en-US"
	DefaultPersona        = "hiring-manager"
	DefaultAccount        = "local"
	DefaultMinutes        = 30
	DefaultContextBudget  = 3000
	DefaultMaxReplyTokens = 200
	DefaultOutputRate     = 48000
)

// ApplyDefaults fills zero values with their defaults. Durations left at
// zero are resolved by the components that own them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Interview.Persona == "" {
		cfg.Interview.Persona = DefaultPersona
	}
	if cfg.Interview.Language == "" {
		cfg.Interview.Language = DefaultLanguage
	}
	if cfg.Interview.Account == "" {
		cfg.Interview.Account = DefaultAccount
	}
	if cfg.Interview.ContextBudget == 0 {
		cfg.Interview.ContextBudget = DefaultContextBudget
	}
	if cfg.Interview.MaxReplyTokens == 0 {
		cfg.Interview.MaxReplyTokens = DefaultMaxReplyTokens
	}
	if cfg.Interview.Tick == 0 {
		cfg.Interview.Tick = time.Minute
	}
	if cfg.Audio.Codec == "" {
		cfg.Audio.Codec = CodecAuto
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputRate
	}
	if cfg.Quota.Backend == "" {
		cfg.Quota.Backend = QuotaMemory
	}
	if cfg.Quota.DefaultMinutes == 0 {
		cfg.Quota.DefaultMinutes = DefaultMinutes
	}
}
