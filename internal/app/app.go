// Package app wires the Parley subsystems into a running terminal program.
//
// The App struct owns the full lifecycle: New creates and connects the audio
// devices, recording and playback state machines and the interview
// orchestrator, Run drives the keyboard-controlled UI loop, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles through [Providers], [Devices] and the
// functional options (WithClock, WithMetrics, WithKeys, ...).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/parley/internal/audioctx"
	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/playback"
	"github.com/MrWong99/parley/internal/quota"
	"github.com/MrWong99/parley/internal/recording"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/capture"
	"github.com/MrWong99/parley/pkg/audio/device"
	"github.com/MrWong99/parley/pkg/audio/encode"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/provider/vad"
)

// Providers holds one interface value per provider slot. STT, LLM and TTS
// are required; the rest may be nil. Populated by main.go via the config
// registry.
type Providers struct {
	STT          stt.Provider
	LLM          llm.Provider
	TTS          tts.Provider
	TTSSecondary tts.Provider
	VAD          vad.Engine

	// Quota defaults to an in-memory store seeded with
	// quota.default_minutes.
	Quota quota.Store
}

// Devices are the host's microphone and speaker.
type Devices struct {
	Input  device.Input
	Output device.Output
}

// session is the part of the app rebuilt when interview settings change.
type session struct {
	orch   *interview.Orchestrator
	player *playback.Machine
}

// App owns all subsystem lifetimes and drives the interview UI.
type App struct {
	cfg       *config.Config
	providers *Providers
	devices   Devices

	clk      clock.Clock
	metrics  *observe.Metrics
	keys     io.Reader
	view     *View
	listener net.Listener

	// Subsystems, initialised in New and torn down in Shutdown.
	unlock      *audioctx.UnlockState
	output      *audioctx.Manager
	transcriber stt.Provider
	model       llm.Provider
	tap         *capture.VADTap
	capturer    *capture.Capturer
	encoder     *encode.Worker
	recorder    *recording.Machine
	cur         atomic.Pointer[session]

	// UI loop state. Only touched on the loop goroutine.
	inbox    chan func()
	done     chan struct{}
	starting bool
	pending  *config.InterviewConfig
	minutes  int

	workers sync.WaitGroup

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClock sets the time source for every timer the app owns.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clk = c }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithKeys reads key presses from r instead of stdin. Each line is one key;
// an empty line is Enter.
func WithKeys(r io.Reader) Option {
	return func(a *App) { a.keys = r }
}

// WithOutput draws the interface to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.view = NewView(w) }
}

// WithListener serves metrics and health checks on ln regardless of
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. No device is opened
// until the first recording or the first reply.
func New(cfg *config.Config, providers *Providers, devices Devices, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm and tts providers are required")
	}
	if devices.Input == nil || devices.Output == nil {
		return nil, errors.New("app: input and output devices are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		devices:   devices,
		inbox:     make(chan func(), 256),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.clk == nil {
		a.clk = clock.Real{}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.keys == nil {
		a.keys = os.Stdin
	}
	if a.view == nil {
		a.view = NewView(os.Stdout)
	}
	if providers.Quota == nil {
		providers.Quota = quota.NewMemoryStore(cfg.Quota.DefaultMinutes)
	}

	a.transcriber = &meteredSTT{next: providers.STT, name: cfg.Providers.STT.Name, metrics: a.metrics}
	a.model = &meteredLLM{next: providers.LLM, name: cfg.Providers.LLM.Name, metrics: a.metrics}

	// ── 1. Audio output ──────────────────────────────────────────────────
	a.unlock = audioctx.NewUnlockState()
	out, err := audioctx.New(audioctx.Config{
		Output:         devices.Output,
		Unlock:         a.unlock,
		Format:         audio.Format{SampleRate: cfg.Audio.OutputSampleRate, Channels: 1},
		RequireGesture: cfg.Audio.RequireGesture,
		Clock:          a.clk,
		OnEvent:        a.onOutputEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init audio output: %w", err)
	}
	a.output = out
	a.closers = append(a.closers, out.Close)

	// ── 2. Capture ───────────────────────────────────────────────────────
	if err := a.initCapture(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 3. Interview session ─────────────────────────────────────────────
	a.minutes = cfg.Quota.DefaultMinutes
	a.cur.Store(a.newSession(cfg.Interview))

	// ── 4. Metrics/health listener ───────────────────────────────────────
	if a.listener == nil && cfg.Server.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
		if err != nil {
			a.runClosers()
			return nil, fmt.Errorf("app: listen %s: %w", cfg.Server.ListenAddr, err)
		}
		a.listener = ln
	}

	slog.Info("app ready",
		"stt", cfg.Providers.STT.Name,
		"llm", cfg.Providers.LLM.Name,
		"tts", cfg.Providers.TTS.Name,
		"codec", a.encoder.Codec().Name(),
		"vad", a.tap != nil,
	)
	return a, nil
}

// initCapture builds the microphone path: optional VAD tap, capturer,
// encoder and the recording state machine on top.
func (a *App) initCapture() error {
	if a.providers.VAD != nil {
		tap, err := capture.NewVADTap(a.providers.VAD, vad.DefaultConfig(),
			capture.WithQueueDepth(a.cfg.Audio.VADQueueDepth),
			capture.WithOnEvent(a.onSpeech),
		)
		if err != nil {
			return err
		}
		a.tap = tap
		a.closers = append(a.closers, tap.Close)
	}

	capOpts := []capture.Option{
		capture.WithClock(a.clk),
		capture.WithLevelInterval(a.cfg.Audio.LevelInterval),
	}
	if a.tap != nil {
		capOpts = append(capOpts, capture.WithTap(a.tap))
	}
	a.capturer = capture.New(a.devices.Input, capOpts...)

	var encOpts []encode.Option
	switch a.cfg.Audio.Codec {
	case config.CodecOpus:
		encOpts = append(encOpts, encode.WithCodec(encode.OpusCodec{}))
	case config.CodecWAV:
		encOpts = append(encOpts, encode.WithCodec(encode.WAVCodec{}))
	}
	a.encoder = encode.NewWorker(encOpts...)

	a.recorder = recording.New(recording.Config{
		Recorder:    &meteredRecorder{next: a.capturer, tap: a.tap, metrics: a.metrics},
		Encoder:     &meteredEncoder{next: a.encoder, clk: a.clk, metrics: a.metrics},
		Cues:        cuePlayer{out: a.output},
		Clock:       a.clk,
		Debounce:    a.cfg.Audio.Debounce,
		ReadyWindow: a.cfg.Audio.ReadyWindow,
		OnChange: func(from, to recording.State) {
			slog.Debug("recording state", "from", from, "to", to)
			a.post(a.renderButton)
		},
	})
	// The recorder goes first so the microphone is released before the
	// encoder stops accepting jobs.
	a.closers = append([]func() error{a.recorder.Close}, a.closers...)
	a.closers = append(a.closers, func() error { a.encoder.Close(); return nil })
	return nil
}

// newSession builds the synthesis chain, player and orchestrator for iv.
func (a *App) newSession(iv config.InterviewConfig) *session {
	p := a.cfg.Providers
	chainOpts := []resilience.ChainOption{
		resilience.WithPrimaryVoice(iv.VoiceID),
		resilience.WithAlternateVoices(iv.AlternateVoices...),
		resilience.WithChainBreaker(resilience.CircuitBreakerConfig{
			Clock:         a.clk,
			OnStateChange: logBreaker,
		}),
		resilience.WithAttemptHook(func(at resilience.Attempt) {
			record(context.Background(), a.metrics, at.Provider, "tts", at.Err)
		}),
	}
	if a.providers.TTSSecondary != nil {
		chainOpts = append(chainOpts, resilience.WithSecondary(a.providers.TTSSecondary, p.TTSSecondary.Name))
	}
	chain := resilience.NewSynthesisChain(a.providers.TTS, p.TTS.Name, chainOpts...)

	s := &session{}
	s.player = playback.New(playback.Config{
		Synthesizer: &meteredTTS{next: chain, clk: a.clk, metrics: a.metrics},
		Output:      a.output,
		VoiceID:     iv.VoiceID,
		Language:    iv.Language,
		OnAudible: func(_ playback.Token, text string) {
			s.orch.Audible(text)
		},
		OnError: func(_ playback.Token, _ error) {
			a.post(func() { a.view.Line(s.player.Message()) })
		},
		OnChange: func(from, to playback.State) {
			slog.Debug("playback state", "from", from, "to", to)
		},
	})

	replier := interview.NewLLMReplier(a.model,
		interview.WithPersonas(iv.Personas),
		interview.WithOpeningPrompt(iv.OpeningPrompt),
		interview.WithContextBudget(iv.ContextBudget),
		interview.WithTemperature(iv.Temperature),
		interview.WithMaxReplyTokens(iv.MaxReplyTokens),
	)
	s.orch = interview.New(interview.Config{
		Transcriber:    a.transcriber,
		Replier:        replier,
		Speaker:        s.player,
		Quota:          a.providers.Quota,
		Account:        iv.Account,
		PersonaID:      iv.Persona,
		Language:       iv.Language,
		Skills:         iv.Skills,
		Vocabulary:     iv.Vocabulary,
		Clock:          a.clk,
		Tick:           iv.Tick,
		Unlock:         a.unlock,
		CaptureStopper: a.recorder.ForceStop,
		OnZeroMinutes: func() {
			a.output.Beep(context.Background(), 220, 3*cueLength)
		},
		OnEvent: func(e interview.Event) {
			a.post(func() { a.handleEvent(e) })
		},
		Metrics: a.metrics,
	})
	return s
}

func logBreaker(name string, from, to resilience.State) {
	slog.Warn("circuit breaker state change", "provider", name, "from", from, "to", to)
}

// onOutputEvent forwards playback progress to the current player. It runs
// on the output goroutine.
func (a *App) onOutputEvent(e audioctx.Event) {
	if s := a.cur.Load(); s != nil {
		s.player.HandleEvent(e)
	}
}

// onSpeech runs on the VAD worker.
func (a *App) onSpeech(e vad.Event) {
	switch e.Type {
	case vad.SpeechStart:
		a.post(func() { a.view.SetSpeaking(true) })
	case vad.SpeechEnd:
		a.post(func() { a.view.SetSpeaking(false) })
	}
}

// ApplyInterview schedules new interview settings. They take effect at once
// when no interview is running, otherwise when the current one ends.
func (a *App) ApplyInterview(iv config.InterviewConfig) {
	a.post(func() {
		a.pending = &iv
		if !a.cur.Load().orch.Active() && !a.starting {
			a.rebuild()
		}
	})
}

// rebuild swaps in a session for the pending settings. Loop only.
func (a *App) rebuild() {
	if a.pending == nil {
		return
	}
	old := a.cur.Load()
	old.player.Stop()
	a.cur.Store(a.newSession(*a.pending))
	slog.Info("interview settings applied", "persona", a.pending.Persona, "language", a.pending.Language)
	a.pending = nil
}

// Session returns a snapshot of the current interview.
func (a *App) Session() interview.Session {
	return a.cur.Load().orch.Session()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends any interview and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.cur.Load().orch.End()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		if a.listener != nil {
			// Already closed when Run served on it.
			_ = a.listener.Close()
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
}
