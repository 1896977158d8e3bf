package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Attempt describes one synthesis call made by a [SynthesisChain].
type Attempt struct {
	Provider string
	Voice    string
	Err      error
}

// SynthesisChain implements [tts.Provider] with the voice recovery rules for
// the interviewer's speech:
//
//  1. the primary provider with the configured voice;
//  2. if that voice is rejected as invalid, exactly one retry with the
//     primary's hard-coded safe voice;
//  3. while the primary keeps rejecting voices, each configured alternate
//     voice in order;
//  4. the secondary provider with its own safe voice.
//
// A failure that is not about the voice (network, quota, server error) skips
// the remaining primary voices and goes straight to the secondary. Each
// provider sits behind a circuit breaker; voice rejections do not count
// against it.
type SynthesisChain struct {
	primary      *chainStage
	primaryVoice string
	alternates   []string
	secondary    *chainStage
	onAttempt    func(Attempt)
}

type chainStage struct {
	name     string
	provider tts.Provider
	breaker  *CircuitBreaker
}

var _ tts.Provider = (*SynthesisChain)(nil)

// ChainOption configures a [SynthesisChain].
type ChainOption func(*chainConfig)

type chainConfig struct {
	primaryVoice  string
	alternates    []string
	secondary     tts.Provider
	secondaryName string
	breaker       CircuitBreakerConfig
	onAttempt     func(Attempt)
}

// WithPrimaryVoice sets the voice tried first. Empty means the primary's
// safe voice.
func WithPrimaryVoice(id string) ChainOption {
	return func(c *chainConfig) { c.primaryVoice = id }
}

// WithAlternateVoices sets further primary-provider voices tried after the
// safe-voice retry.
func WithAlternateVoices(ids ...string) ChainOption {
	return func(c *chainConfig) { c.alternates = append(c.alternates, ids...) }
}

// WithSecondary registers the provider used once the primary is exhausted.
func WithSecondary(p tts.Provider, name string) ChainOption {
	return func(c *chainConfig) {
		c.secondary = p
		c.secondaryName = name
	}
}

// WithChainBreaker sets the circuit breaker template for both providers.
func WithChainBreaker(cfg CircuitBreakerConfig) ChainOption {
	return func(c *chainConfig) { c.breaker = cfg }
}

// WithAttemptHook registers a callback invoked after every synthesis call.
func WithAttemptHook(fn func(Attempt)) ChainOption {
	return func(c *chainConfig) { c.onAttempt = fn }
}

// NewSynthesisChain creates a chain around primary.
func NewSynthesisChain(primary tts.Provider, primaryName string, opts ...ChainOption) *SynthesisChain {
	var cfg chainConfig
	for _, o := range opts {
		o(&cfg)
	}
	stage := func(name string, p tts.Provider) *chainStage {
		cb := cfg.breaker
		cb.Name = "tts/" + name
		base := cb.IsFailure
		if base == nil {
			base = CountsAsFailure
		}
		cb.IsFailure = func(err error) bool {
			return base(err) && !tts.IsVoiceInvalid(err)
		}
		return &chainStage{name: name, provider: p, breaker: NewCircuitBreaker(cb)}
	}

	c := &SynthesisChain{
		primary:      stage(primaryName, primary),
		primaryVoice: cfg.primaryVoice,
		alternates:   cfg.alternates,
		onAttempt:    cfg.onAttempt,
	}
	if cfg.secondary != nil {
		c.secondary = stage(cfg.secondaryName, cfg.secondary)
	}
	return c
}

// DefaultVoice implements [tts.Provider] and returns the primary's safe voice.
func (c *SynthesisChain) DefaultVoice() string {
	return c.primary.provider.DefaultVoice()
}

// Synthesize implements [tts.Provider]. A non-empty req.VoiceID overrides the
// configured primary voice for this call.
func (c *SynthesisChain) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	safe := c.primary.provider.DefaultVoice()
	voice := req.VoiceID
	if voice == "" {
		voice = c.primaryVoice
	}
	if voice == "" {
		voice = safe
	}

	var errs []error
	tried := make([]string, 0, 2+len(c.alternates))

	try := func(s *chainStage, v string) (*tts.Speech, error) {
		r := req
		r.VoiceID = v
		var speech *tts.Speech
		err := s.breaker.Execute(func() error {
			var err error
			speech, err = s.provider.Synthesize(ctx, r)
			return err
		})
		if c.onAttempt != nil {
			c.onAttempt(Attempt{Provider: s.name, Voice: v, Err: err})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", s.name, v, err))
		}
		return speech, err
	}

	speech, err := try(c.primary, voice)
	if err == nil {
		return speech, nil
	}
	tried = append(tried, voice)

	if tts.IsVoiceInvalid(err) && voice != safe && ctx.Err() == nil {
		slog.Warn("voice rejected, retrying with safe voice",
			"provider", c.primary.name, "voice", voice, "safe_voice", safe)
		speech, err = try(c.primary, safe)
		if err == nil {
			return speech, nil
		}
		tried = append(tried, safe)

		for _, alt := range c.alternates {
			if !tts.IsVoiceInvalid(err) || ctx.Err() != nil {
				break
			}
			if slices.Contains(tried, alt) {
				continue
			}
			speech, err = try(c.primary, alt)
			if err == nil {
				return speech, nil
			}
			tried = append(tried, alt)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("resilience: synthesize: %w", ctxErr)
	}

	if c.secondary != nil {
		slog.Warn("primary synthesis exhausted, using secondary",
			"primary", c.primary.name, "secondary", c.secondary.name, "error", err)
		speech, err = try(c.secondary, c.secondary.provider.DefaultVoice())
		if err == nil {
			return speech, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// States reports the breaker state of each provider.
func (c *SynthesisChain) States() map[string]State {
	out := map[string]State{c.primary.name: c.primary.breaker.State()}
	if c.secondary != nil {
		out[c.secondary.name] = c.secondary.breaker.State()
	}
	return out
}
