// Package playback implements the single-flight speech player:
//
//	idle → starting → playing → idle
//
// [Machine.Speak] is accepted only from idle. It mints a [Token], synthesizes
// the text and hands the audio to the output, and the machine moves to
// playing only when the output confirms the audio is audible. Results and
// events carrying any token other than the current one are dropped without
// side effects.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/parley/internal/audioctx"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// ErrPlaybackBlocked means the output refused to start until the user
// unlocks audio.
var ErrPlaybackBlocked = errors.New("playback: blocked until audio is enabled")

// MsgTapToEnable is shown when playback was blocked.
const MsgTapToEnable = "Audio is blocked. Press u to enable sound, and the next reply will play."

// MsgPlaybackFailed is shown when a reply could not be played.
const MsgPlaybackFailed = "The reply could not be played. Press Enter to answer again, or e to end the interview."

// State is the playback lifecycle position.
type State int

const (
	StateIdle State = iota
	StateStarting
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Token identifies one Speak request. Tokens increase monotonically; zero is
// never minted.
type Token uint64

// Synthesizer renders text to speech. [tts.Provider] implementations satisfy
// it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error)
}

// Output plays synthesized speech and reports progress through
// [Machine.HandleEvent]. [audioctx.Manager] implements it.
type Output interface {
	Play(ctx context.Context, token uint64, speech *tts.Speech) error
	Stop()
}

// Config holds the dependencies of a [Machine].
type Config struct {
	Synthesizer Synthesizer
	Output      Output

	// VoiceID and Language are passed on every synthesis request.
	VoiceID  string
	Language string

	// OnAttempt fires when a Speak is accepted.
	OnAttempt func(tok Token, text string)

	// OnAudible fires when the utterance for the current token is confirmed
	// audible.
	OnAudible func(tok Token, text string)

	// OnError fires when the current utterance fails or is blocked.
	OnError func(tok Token, err error)

	// OnChange fires after every transition.
	OnChange func(from, to State)
}

// Machine is the authoritative playback state. Callbacks run without the
// machine's lock held.
type Machine struct {
	synth     Synthesizer
	out       Output
	voiceID   string
	language  string
	onAttempt func(Token, string)
	onAudible func(Token, string)
	onError   func(Token, error)
	onChange  func(State, State)

	mu      sync.Mutex
	state   State
	minted  Token
	current Token
	text    string
	cancel  context.CancelFunc
	lastErr error
}

// New creates an idle Machine.
func New(cfg Config) *Machine {
	return &Machine{
		synth:     cfg.Synthesizer,
		out:       cfg.Output,
		voiceID:   cfg.VoiceID,
		language:  cfg.Language,
		onAttempt: cfg.OnAttempt,
		onAudible: cfg.OnAudible,
		onError:   cfg.OnError,
		onChange:  cfg.OnChange,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the token of the utterance in flight, or zero.
func (m *Machine) Current() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastMinted returns the most recently minted token.
func (m *Machine) LastMinted() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minted
}

// IsDisabled reports whether a speak control should be disabled: true while
// starting.
func (m *Machine) IsDisabled() bool { return m.State() == StateStarting }

// Err returns the failure that ended the last utterance, or nil.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Message returns the user-facing text for [Machine.Err], or "".
func (m *Machine) Message() string {
	err := m.Err()
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPlaybackBlocked):
		return MsgTapToEnable
	default:
		return MsgPlaybackFailed
	}
}

// Speak starts an utterance. It is a no-op returning false, minting nothing,
// unless the machine is idle. Synthesis runs on its own goroutine; ctx
// bounds it and the hand-off to the output.
func (m *Machine) Speak(ctx context.Context, text string) (Token, bool) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return 0, false
	}
	m.minted++
	tok := m.minted
	m.current = tok
	m.text = text
	m.lastErr = nil
	m.state = StateStarting
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.notify(StateIdle, StateStarting)
	if m.onAttempt != nil {
		m.onAttempt(tok, text)
	}

	go m.synthesize(ctx, tok, text)
	return tok, true
}

func (m *Machine) synthesize(ctx context.Context, tok Token, text string) {
	ctx, span := observe.StartSpan(ctx, observe.SpanSynthesize, observe.AttrToken.Int64(int64(tok)))
	speech, err := m.synth.Synthesize(ctx, tts.Request{
		Text:     text,
		VoiceID:  m.voiceID,
		Language: m.language,
	})
	if err == nil {
		span.SetAttributes(observe.AttrProvider.String(speech.Provider))
	}
	observe.EndSpan(span, err)

	log := observe.Logger(ctx)
	if !m.isCurrent(tok) {
		log.Debug("playback: dropping stale synthesis", "token", tok)
		return
	}
	if err != nil {
		m.fail(tok, fmt.Errorf("playback: synthesize: %w", err))
		return
	}
	log.Debug("playback: speech ready",
		"token", tok,
		"provider", speech.Provider,
		"voice", speech.Voice,
		"duration", speech.Duration(),
	)
	if err := m.out.Play(ctx, uint64(tok), speech); err != nil {
		m.fail(tok, fmt.Errorf("playback: play: %w", err))
	}
}

// HandleEvent applies an output event. Events for any token other than the
// current one are ignored. Loaded never changes state.
func (m *Machine) HandleEvent(e audioctx.Event) {
	tok := Token(e.Token)
	switch e.Kind {
	case audioctx.EventAudible:
		m.mu.Lock()
		if tok != m.current || m.state != StateStarting {
			m.mu.Unlock()
			return
		}
		m.state = StatePlaying
		text := m.text
		m.mu.Unlock()
		m.notify(StateStarting, StatePlaying)
		if m.onAudible != nil {
			m.onAudible(tok, text)
		}
	case audioctx.EventBlocked:
		m.fail(tok, ErrPlaybackBlocked)
	case audioctx.EventError:
		err := e.Err
		if err == nil {
			err = errors.New("playback: output error")
		}
		m.fail(tok, err)
	case audioctx.EventEnded:
		m.mu.Lock()
		if tok != m.current {
			m.mu.Unlock()
			return
		}
		from := m.state
		m.resetLocked()
		m.mu.Unlock()
		m.notify(from, StateIdle)
	}
}

// Stop ends any utterance and returns to idle. It is always safe and
// invalidates the current token.
func (m *Machine) Stop() {
	m.mu.Lock()
	from := m.state
	m.resetLocked()
	m.mu.Unlock()

	if m.out != nil {
		m.out.Stop()
	}
	m.notify(from, StateIdle)
}

func (m *Machine) fail(tok Token, err error) {
	m.mu.Lock()
	if tok != m.current {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.resetLocked()
	m.lastErr = err
	m.mu.Unlock()

	if errors.Is(err, ErrPlaybackBlocked) {
		slog.Info("playback blocked until audio is enabled", "token", tok)
	} else {
		slog.Warn("playback failed", "token", tok, "err", err)
	}
	m.notify(from, StateIdle)
	if m.onError != nil {
		m.onError(tok, err)
	}
}

// resetLocked must be called with m.mu held.
func (m *Machine) resetLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = StateIdle
	m.current = 0
	m.text = ""
}

func (m *Machine) isCurrent(tok Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tok == m.current
}

func (m *Machine) notify(from, to State) {
	if from != to && m.onChange != nil {
		m.onChange(from, to)
	}
}
