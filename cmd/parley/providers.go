package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/quota"
	pgquota "github.com/MrWong99/parley/internal/quota/postgres"
	redisquota "github.com/MrWong99/parley/internal/quota/redis"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/parley/pkg/provider/llm/openai"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/parley/pkg/provider/stt/openai"
	"github.com/MrWong99/parley/pkg/provider/stt/whisper"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/parley/pkg/provider/tts/openai"
	"github.com/MrWong99/parley/pkg/provider/vad"
	"github.com/MrWong99/parley/pkg/provider/vad/energy"
	"github.com/MrWong99/parley/pkg/provider/vad/webrtc"
)

// anyllmProviders are the LLM backends reached through any-llm-go. OpenAI has
// a native client and is registered separately.
var anyllmProviders = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ──────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, oastt.WithPrompt(prompt))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(entry.APIKey, opts...)
	})
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if terms := optStrings(entry.Options, "keyterms"); len(terms) > 0 {
			opts = append(opts, deepgram.WithKeyterms(terms...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ──────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})
	for _, name := range anyllmProviders {
		providerName := name
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ──────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if speed := optFloat(entry.Options, "speed"); speed > 0 {
			opts = append(opts, oatts.WithSpeed(speed))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oatts.WithTimeout(d))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	// ── VAD ──────────────────────────────────────────────────────────────────
	reg.RegisterVAD("webrtc", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []webrtc.Option
		if _, ok := entry.Options["mode"]; ok {
			opts = append(opts, webrtc.WithMode(int(optFloat(entry.Options, "mode"))))
		}
		return webrtc.New(opts...), nil
	})
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.Engine{}, nil
	})

	// ── Quota ────────────────────────────────────────────────────────────────
	reg.RegisterQuota(config.QuotaMemory, func(_ context.Context, cfg config.QuotaConfig) (quota.Store, func(), error) {
		return quota.NewMemoryStore(cfg.DefaultMinutes), func() {}, nil
	})
	reg.RegisterQuota(config.QuotaPostgres, func(ctx context.Context, cfg config.QuotaConfig) (quota.Store, func(), error) {
		s, err := pgquota.NewStore(ctx, cfg.DSN, cfg.DefaultMinutes)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	})
	reg.RegisterQuota(config.QuotaRedis, func(ctx context.Context, cfg config.QuotaConfig) (quota.Store, func(), error) {
		s, err := redisquota.Dial(ctx, cfg.URL, cfg.DefaultMinutes)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("closing redis quota store", "err", err)
			}
		}, nil
	})
}

// buildProviders instantiates every configured provider through reg. The
// returned release func closes the quota store.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, func(), error) {
	ps := &app.Providers{}
	breakers := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: logBreakerChange},
	}

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, fmt.Errorf("stt: %w", err)
	}
	ps.STT = sttP
	if fb := cfg.Providers.STTFallback; fb.Configured() {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, nil, fmt.Errorf("stt fallback: %w", err)
		}
		chain := resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, breakers)
		chain.AddFallback(fb.Name, p)
		ps.STT = chain
	}

	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: %w", err)
	}
	ps.LLM = llmP
	if fb := cfg.Providers.LLMFallback; fb.Configured() {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, nil, fmt.Errorf("llm fallback: %w", err)
		}
		chain := resilience.NewLLMFallback(llmP, cfg.Providers.LLM.Name, breakers)
		chain.AddFallback(fb.Name, p)
		ps.LLM = chain
	}

	if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS); err != nil {
		return nil, nil, fmt.Errorf("tts: %w", err)
	}
	if cfg.Providers.TTSSecondary.Configured() {
		if ps.TTSSecondary, err = reg.CreateTTS(cfg.Providers.TTSSecondary); err != nil {
			return nil, nil, fmt.Errorf("tts secondary: %w", err)
		}
	}

	if cfg.Providers.VAD.Configured() {
		ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("vad provider not registered, speech indicator disabled", "name", cfg.Providers.VAD.Name)
		case err != nil:
			return nil, nil, fmt.Errorf("vad: %w", err)
		}
	}

	store, release, err := reg.CreateQuota(ctx, cfg.Quota)
	if err != nil {
		return nil, nil, fmt.Errorf("quota: %w", err)
	}
	ps.Quota = store
	return ps, release, nil
}

func logBreakerChange(name string, from, to resilience.State) {
	slog.Warn("provider circuit breaker", "provider", name, "from", from, "to", to)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the key is absent or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings accepts a YAML list of strings or a single string.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// optFloat reads a numeric option. YAML decodes integers as int.
func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// optDuration reads a duration string such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s)
		return 0
	}
	return d
}
