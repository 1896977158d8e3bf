// Package recording implements the record-button lifecycle: a state machine
// that arms the microphone, captures an answer, hands it to the encoder and
// waits for its transcript.
//
//	idle → arming → recording → stopping → processing → ready → idle
//
// Taps closer together than the debounce window are ignored, a failed start
// or encode returns to idle without partial state, and an empty capture is
// discarded silently. Transitions requested from a state that does not allow
// them are no-ops, so rapid key presses are always safe.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/pkg/audio/capture"
	"github.com/MrWong99/parley/pkg/audio/encode"
)

const (
	// DefaultDebounce is the minimum spacing between two accepted taps.
	DefaultDebounce = 250 * time.Millisecond

	// DefaultReadyWindow is how long the ready state is shown.
	DefaultReadyWindow = time.Second
)

// ErrTranscriptUnusable is recorded when the transcript carries an error
// marker.
var ErrTranscriptUnusable = errors.New("recording: transcript unusable")

// Recorder owns the microphone. [capture.Capturer] implements it.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*capture.Buffer, time.Duration, error)
}

// Encoder compresses a finished capture. [encode.Worker] implements it.
type Encoder interface {
	Submit(ctx context.Context, job *encode.Job) <-chan encode.Result
}

// Cue identifies a short confirmation sound.
type Cue int

const (
	CueStarted Cue = iota + 1
	CueStopped
)

// CuePlayer plays confirmation sounds. PlayCue must not block for long.
type CuePlayer interface {
	PlayCue(c Cue)
}

// Config holds the dependencies of a [Machine].
type Config struct {
	Recorder Recorder
	Encoder  Encoder

	// Cues is optional.
	Cues CuePlayer

	// Clock defaults to [clock.Real].
	Clock clock.Clock

	// Debounce defaults to [DefaultDebounce].
	Debounce time.Duration

	// ReadyWindow defaults to [DefaultReadyWindow].
	ReadyWindow time.Duration

	// OnChange is called after every transition, without the machine's lock.
	OnChange func(from, to State)
}

// Machine is the single authoritative recording state. All methods are safe
// for concurrent use; Start and Stop block while the device opens or the
// encoder runs.
type Machine struct {
	rec      Recorder
	enc      Encoder
	cues     CuePlayer
	clk      clock.Clock
	debounce time.Duration
	ready    time.Duration
	onChange func(from, to State)

	mu         sync.Mutex
	state      State
	gen        uint64
	lastTap    time.Time
	tapped     bool
	readyTimer clock.Timer
	lastErr    error
}

// New creates a Machine in [StateIdle].
func New(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.ReadyWindow <= 0 {
		cfg.ReadyWindow = DefaultReadyWindow
	}
	return &Machine{
		rec:      cfg.Recorder,
		enc:      cfg.Encoder,
		cues:     cfg.Cues,
		clk:      cfg.Clock,
		debounce: cfg.Debounce,
		ready:    cfg.ReadyWindow,
		onChange: cfg.OnChange,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ButtonLabel returns the caption for the current state.
func (m *Machine) ButtonLabel() string { return m.State().ButtonLabel() }

// IsButtonDisabled is true only while stopping or processing.
func (m *Machine) IsButtonDisabled() bool { return m.State().ButtonDisabled() }

// Err returns the failure that last sent the machine back to idle, or nil.
// It is cleared by the next accepted Start.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Message returns the user-facing text for [Machine.Err], or "".
func (m *Machine) Message() string { return MessageFor(m.Err()) }

// Active reports whether the microphone is claimed (arming or recording).
func (m *Machine) Active() bool {
	s := m.State()
	return s == StateArming || s == StateRecording
}

// Toggle starts a recording from idle or stops one in progress. In any other
// state it does nothing.
func (m *Machine) Toggle(ctx context.Context) (*encode.Recording, error) {
	switch m.State() {
	case StateIdle:
		return nil, m.Start(ctx)
	case StateRecording:
		return m.Stop(ctx)
	default:
		return nil, nil
	}
}

// Start moves idle → arming, opens the microphone and on success moves to
// recording and plays [CueStarted]. On failure the machine returns to idle
// and the error is returned and kept for [Machine.Message]. A debounced or
// illegal tap returns nil without doing anything.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle || !m.acceptTapLocked() {
		m.mu.Unlock()
		return nil
	}
	m.lastErr = nil
	m.gen++
	gen := m.gen
	m.state = StateArming
	m.mu.Unlock()
	m.notify(StateIdle, StateArming)

	err := m.rec.Start(ctx)

	m.mu.Lock()
	if m.gen != gen || m.state != StateArming {
		// Force-stopped while the device was opening.
		m.mu.Unlock()
		if err == nil {
			m.release()
		}
		return nil
	}
	if err != nil {
		m.state = StateIdle
		m.lastErr = err
		m.mu.Unlock()
		slog.Warn("recording: start failed", "err", err, "permission", errors.Is(err, capture.ErrPermissionDenied))
		m.notify(StateArming, StateIdle)
		return fmt.Errorf("recording: start: %w", err)
	}
	m.state = StateRecording
	m.mu.Unlock()
	m.notify(StateArming, StateRecording)
	m.cue(CueStarted)
	return nil
}

// Stop moves recording → stopping, plays [CueStopped], releases the
// microphone and encodes the capture. It returns the recording and moves to
// processing, or returns to idle with a nil recording when the capture was
// empty or encoding failed. A debounced or illegal tap returns (nil, nil).
func (m *Machine) Stop(ctx context.Context) (*encode.Recording, error) {
	m.mu.Lock()
	if m.state != StateRecording || !m.acceptTapLocked() {
		m.mu.Unlock()
		return nil, nil
	}
	gen := m.gen
	m.state = StateStopping
	m.mu.Unlock()
	m.notify(StateRecording, StateStopping)
	m.cue(CueStopped)

	rec, err := m.finalize(ctx)

	m.mu.Lock()
	if m.gen != gen || m.state != StateStopping {
		m.mu.Unlock()
		if rec != nil {
			rec.Release()
		}
		return nil, nil
	}
	switch {
	case err != nil:
		m.state = StateIdle
		m.lastErr = err
		m.mu.Unlock()
		slog.Warn("recording: finalize failed", "err", err)
		m.notify(StateStopping, StateIdle)
		return nil, err
	case rec == nil || rec.Empty():
		m.state = StateIdle
		m.mu.Unlock()
		slog.Debug("recording: empty capture discarded")
		m.notify(StateStopping, StateIdle)
		return nil, nil
	}
	m.state = StateProcessing
	m.mu.Unlock()
	m.notify(StateStopping, StateProcessing)
	return rec, nil
}

func (m *Machine) finalize(ctx context.Context) (*encode.Recording, error) {
	buf, elapsed, err := m.rec.Stop()
	if err != nil {
		return nil, fmt.Errorf("recording: stop capture: %w", err)
	}
	samples, err := buf.Take()
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	job := &encode.Job{Samples: samples, Format: buf.Format(), Elapsed: elapsed}
	res := <-m.enc.Submit(ctx, job)
	if res.Err != nil {
		return nil, fmt.Errorf("recording: %w", res.Err)
	}
	return res.Recording, nil
}

// Transcribed applies a transcript to a machine in processing. Placeholder
// status strings are ignored. A blank transcript, or one with an error
// marker, returns to idle directly; anything else moves to ready, which
// reverts to idle after the ready window.
func (m *Machine) Transcribed(text string) {
	if IsPlaceholder(text) {
		return
	}

	m.mu.Lock()
	if m.state != StateProcessing {
		m.mu.Unlock()
		return
	}
	switch {
	case strings.TrimSpace(text) == "":
		m.state = StateIdle
	case HasErrorMarker(text):
		m.state = StateIdle
		m.lastErr = ErrTranscriptUnusable
	default:
		m.state = StateReady
		gen := m.gen
		m.readyTimer = m.clk.AfterFunc(m.ready, func() { m.expireReady(gen) })
	}
	to := m.state
	m.mu.Unlock()
	m.notify(StateProcessing, to)
}

// Fail returns a machine in processing to idle after the transcript request
// itself failed.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	if m.state != StateProcessing {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.lastErr = errors.Join(ErrTranscriptUnusable, err)
	m.mu.Unlock()
	m.notify(StateProcessing, StateIdle)
}

func (m *Machine) expireReady(gen uint64) {
	m.mu.Lock()
	if m.state != StateReady || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.readyTimer = nil
	m.mu.Unlock()
	m.notify(StateReady, StateIdle)
}

// ForceStop returns the machine to idle from any state, releasing the
// microphone and discarding any capture in progress. Results of work started
// before the call are dropped.
func (m *Machine) ForceStop() {
	m.mu.Lock()
	from := m.state
	m.gen++
	m.state = StateIdle
	if m.readyTimer != nil {
		m.readyTimer.Stop()
		m.readyTimer = nil
	}
	m.mu.Unlock()

	if from == StateRecording {
		m.release()
	}
	m.notify(from, StateIdle)
}

// Close is ForceStop.
func (m *Machine) Close() error {
	m.ForceStop()
	return nil
}

// acceptTapLocked applies the debounce window. Must be called with m.mu held.
func (m *Machine) acceptTapLocked() bool {
	now := m.clk.Now()
	if m.tapped && now.Sub(m.lastTap) < m.debounce {
		slog.Debug("recording: tap debounced", "since_last", now.Sub(m.lastTap))
		return false
	}
	m.tapped = true
	m.lastTap = now
	return true
}

func (m *Machine) release() {
	if buf, _, err := m.rec.Stop(); err == nil && buf != nil {
		_, _ = buf.Take()
	}
}

func (m *Machine) cue(c Cue) {
	if m.cues != nil {
		m.cues.PlayCue(c)
	}
}

func (m *Machine) notify(from, to State) {
	if from != to && m.onChange != nil {
		m.onChange(from, to)
	}
}
