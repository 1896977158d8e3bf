// Package audioctx owns the speaker. A [Manager] opens the output device on
// first use, plays one utterance at a time, reports playback progress as
// token-tagged [Event]s and recovers output that the host suspended behind
// the program's back.
//
// Nothing else in the process writes to the output device.
package audioctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/device"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// ErrClosed is returned by Play after Close.
var ErrClosed = errors.New("audioctx: manager closed")

const defaultChunk = 20 * time.Millisecond

// Config holds the dependencies of a [Manager].
type Config struct {
	// Output is opened lazily on the first Play.
	Output device.Output

	// Unlock is the process-wide unlock handle. Default: a fresh one.
	Unlock *UnlockState

	// Format is the output layout. Default: 48 kHz mono. Channels must be
	// one or two.
	Format audio.Format

	// RequireGesture makes playback report [EventBlocked] until a
	// [Manager.Gesture] has unlocked output.
	RequireGesture bool

	// ChunkDuration is the size of each device write. Default: 20ms.
	ChunkDuration time.Duration

	// Clock defaults to [clock.Real].
	Clock clock.Clock

	// OnEvent receives playback progress. It is called from the playback
	// goroutine and must not block.
	OnEvent func(Event)
}

type job struct {
	token   uint64
	samples []float32
	silent  bool
	stop    chan struct{}
	once    sync.Once

	// prev is the job started before this one. Its goroutine must have
	// left the stream before this one writes.
	prev *job
	done chan struct{}
}

func (m *Manager) newJobLocked(token uint64, samples []float32, silent bool) *job {
	j := &job{
		token:   token,
		samples: samples,
		silent:  silent,
		stop:    make(chan struct{}),
		prev:    m.last,
		done:    make(chan struct{}),
	}
	m.last = j
	m.current = j
	return j
}

func (j *job) cancel() { j.once.Do(func() { close(j.stop) }) }

func (j *job) stopped() bool {
	select {
	case <-j.stop:
		return true
	default:
		return false
	}
}

// Manager is the sole owner of the output device. All methods are safe for
// concurrent use.
type Manager struct {
	out            device.Output
	unlock         *UnlockState
	format         audio.Format
	requireGesture bool
	chunk          time.Duration
	clk            clock.Clock
	onEvent        func(Event)

	wake chan struct{}

	mu      sync.Mutex
	stream  device.OutputStream
	current *job
	last    *job
	armed   bool
	closed  bool
}

// New creates a Manager. The output device is not touched until the first
// Play.
func New(cfg Config) (*Manager, error) {
	if cfg.Output == nil {
		return nil, errors.New("audioctx: output must not be nil")
	}
	if cfg.Format.SampleRate == 0 {
		cfg.Format.SampleRate = 48000
	}
	if cfg.Format.Channels == 0 {
		cfg.Format.Channels = 1
	}
	if cfg.Format.Channels > 2 || cfg.Format.SampleRate < 0 {
		return nil, fmt.Errorf("audioctx: unsupported output format %s", cfg.Format)
	}
	if cfg.Unlock == nil {
		cfg.Unlock = NewUnlockState()
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = defaultChunk
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Manager{
		out:            cfg.Output,
		unlock:         cfg.Unlock,
		format:         cfg.Format,
		requireGesture: cfg.RequireGesture,
		chunk:          cfg.ChunkDuration,
		clk:            cfg.Clock,
		onEvent:        cfg.OnEvent,
		wake:           make(chan struct{}, 1),
	}, nil
}

// Unlock returns the unlock handle the manager consults.
func (m *Manager) Unlock() *UnlockState { return m.unlock }

// Play starts speech, replacing any utterance in progress. Progress is
// reported through OnEvent tagged with token: [EventLoaded] first, then
// [EventAudible] once samples reach the speaker, then [EventEnded]. A locked
// output reports [EventBlocked] instead of playing. An output that cannot be
// opened reports [EventError] and returns the error.
func (m *Manager) Play(ctx context.Context, token uint64, speech *tts.Speech) error {
	if speech == nil || len(speech.Audio) == 0 {
		err := errors.New("audioctx: empty speech")
		m.emit(Event{Token: token, Kind: EventError, Err: err})
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.stopLocked()
	stream, err := m.ensureStreamLocked(ctx)
	if err != nil {
		m.mu.Unlock()
		m.emit(Event{Token: token, Kind: EventError, Err: err})
		return err
	}
	if m.requireGesture && !m.unlock.Unlocked() {
		m.mu.Unlock()
		m.emit(Event{Token: token, Kind: EventLoaded})
		m.emit(Event{Token: token, Kind: EventBlocked})
		return nil
	}
	j := m.newJobLocked(token, m.convert(speech, stream.Format()), false)
	m.mu.Unlock()

	go m.run(j, stream)
	return nil
}

// Beep plays a short sine tone unless speech is playing or output is
// locked. It reports no events.
func (m *Manager) Beep(ctx context.Context, freq float64, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.current != nil || (m.requireGesture && !m.unlock.Unlocked()) {
		return
	}
	stream, err := m.ensureStreamLocked(ctx)
	if err != nil {
		slog.Debug("audioctx: beep skipped", "err", err)
		return
	}
	j := m.newJobLocked(0, tone(freq, d, stream.Format()), true)
	go m.run(j, stream)
}

// Stop ends the utterance in progress without reporting an event. It is
// always safe to call.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Playing reports whether an utterance is being written to the device.
func (m *Manager) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && !m.current.silent
}

// Interrupt pauses output the way the host does when it takes the audio
// device away (a suspended process, an incoming call). The utterance in
// progress resumes on the next [Manager.Signal].
func (m *Manager) Interrupt() {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.Pause(); err != nil {
		slog.Debug("audioctx: pause on interrupt", "err", err)
	}
}

// Signal handles a host notification. If an utterance is in progress and
// the device is paused, it makes exactly one silent resume attempt. It
// reports whether output was resumed; failures are logged, not returned.
func (m *Manager) Signal(s Signal) bool {
	resumed := m.tryResume()
	slog.Debug("audioctx: signal", "signal", s, "resumed", resumed)
	return resumed
}

// ArmFirstGestureRecovery makes the next [Manager.Gesture] also resume a
// suspended utterance. It is one-shot.
func (m *Manager) ArmFirstGestureRecovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
}

// Gesture records an explicit user action. The first gesture of a session
// unlocks output; an armed recovery also resumes suspended output. It
// reports whether this call unlocked output.
func (m *Manager) Gesture() bool {
	unlocked := m.unlock.MarkUnlocked(m.clk.Now())
	if unlocked {
		slog.Info("audio output unlocked")
	}

	m.mu.Lock()
	armed := m.armed
	m.armed = false
	m.mu.Unlock()
	if armed {
		m.tryResume()
	}
	return unlocked
}

// Close stops playback and releases the device.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.stopLocked()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	m.stream = nil
	if err != nil {
		return fmt.Errorf("audioctx: close output: %w", err)
	}
	return nil
}

func (m *Manager) tryResume() bool {
	m.mu.Lock()
	stream := m.stream
	active := m.current != nil
	m.mu.Unlock()

	if stream == nil || !active || !stream.Paused() {
		return false
	}
	if err := stream.Resume(); err != nil {
		slog.Debug("audioctx: resume failed", "err", err)
		return false
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// ensureStreamLocked must be called with m.mu held.
func (m *Manager) ensureStreamLocked(ctx context.Context) (device.OutputStream, error) {
	if m.stream != nil {
		return m.stream, nil
	}
	stream, err := m.out.Open(ctx, m.format)
	if err != nil {
		return nil, fmt.Errorf("audioctx: open output: %w", err)
	}
	slog.Debug("audio output opened", "format", stream.Format().String())
	m.stream = stream
	return stream, nil
}

// stopLocked must be called with m.mu held.
func (m *Manager) stopLocked() {
	if m.current != nil {
		m.current.cancel()
		m.current = nil
	}
}

func (m *Manager) finish(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == j {
		m.current = nil
	}
}

func (m *Manager) run(j *job, stream device.OutputStream) {
	defer close(j.done)
	defer m.finish(j)
	if j.prev != nil {
		<-j.prev.done
		j.prev = nil
	}
	if j.stopped() {
		return
	}
	emit := func(k EventKind, err error) {
		if !j.silent && !j.stopped() {
			m.emit(Event{Token: j.token, Kind: k, Err: err})
		}
	}
	emit(EventLoaded, nil)

	f := stream.Format()
	step := max(int(int64(f.SampleRate)*int64(m.chunk)/int64(time.Second))*max(f.Channels, 1), 1)
	audible := false
	for off := 0; off < len(j.samples); {
		if j.stopped() {
			return
		}
		if stream.Paused() {
			select {
			case <-j.stop:
				return
			case <-m.wake:
			}
			continue
		}
		end := min(off+step, len(j.samples))
		if err := stream.Write(j.samples[off:end]); err != nil {
			emit(EventError, fmt.Errorf("audioctx: write: %w", err))
			return
		}
		off = end
		if !audible && !stream.Paused() {
			audible = true
			emit(EventAudible, nil)
		}
	}
	emit(EventEnded, nil)
}

func (m *Manager) emit(e Event) {
	if m.onEvent != nil {
		m.onEvent(e)
	}
}

// convert reshapes speech to the output layout.
func (m *Manager) convert(s *tts.Speech, out audio.Format) []float32 {
	samples := audio.Downmix(s.Samples(), s.Format.Channels)
	samples = audio.Resample(samples, s.Format.SampleRate, out.SampleRate)
	if out.Channels == 2 {
		samples = audio.MonoToStereo(samples)
	}
	return samples
}

// tone renders a sine with short linear fades to avoid clicks.
func tone(freq float64, d time.Duration, f audio.Format) []float32 {
	n := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	fade := max(n/10, 1)
	mono := make([]float32, n)
	for i := range mono {
		gain := 0.2
		if i < fade {
			gain *= float64(i) / float64(fade)
		} else if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}
		mono[i] = float32(gain * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate)))
	}
	if f.Channels == 2 {
		return audio.MonoToStereo(mono)
	}
	return mono
}
