// Package capture turns a live microphone stream into fixed-size frames.
//
// A [Capturer] owns the input device for the duration of one recording: it
// re-blocks whatever chunk size the device delivers into [FrameSize]-sample
// frames, appends every frame to a [Buffer], copies each frame to an optional
// [VADTap], and publishes a smoothed input level for a meter display.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/device"
)

// FrameSize is the number of samples per channel in every emitted frame.
const FrameSize = 4096

const (
	defaultLevelInterval = 16 * time.Millisecond // ~60 Hz
	readChunk            = 1024
)

var (
	// ErrPermissionDenied is returned by Start when the OS refused microphone
	// access. It is distinct from every other start failure.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrAlreadyActive is returned by Start while a capture is running.
	ErrAlreadyActive = errors.New("capture: already active")

	// ErrNotActive is returned by Stop when no capture is running.
	ErrNotActive = errors.New("capture: not active")
)

// Option is a functional option for [Capturer].
type Option func(*Capturer)

// WithClock injects the time source. Default: [clock.Real].
func WithClock(c clock.Clock) Option {
	return func(cp *Capturer) { cp.clk = c }
}

// WithTap attaches a VAD tap that receives a copy of every frame.
func WithTap(t *VADTap) Option {
	return func(cp *Capturer) { cp.tap = t }
}

// WithConstraints overrides [device.VoiceConstraints].
func WithConstraints(c device.Constraints) Option {
	return func(cp *Capturer) { cp.constraints = c }
}

// WithLevelInterval sets the level publication period. Default: 16 ms.
func WithLevelInterval(d time.Duration) Option {
	return func(cp *Capturer) {
		if d > 0 {
			cp.levelInterval = d
		}
	}
}

// Capturer captures microphone audio into frames. Only one capture can be
// active at a time.
type Capturer struct {
	input         device.Input
	clk           clock.Clock
	tap           *VADTap
	constraints   device.Constraints
	levelInterval time.Duration

	levels chan float64
	level  atomic.Uint64 // math.Float64bits of the latest smoothed level

	mu         sync.Mutex
	stream     device.InputStream
	buf        *Buffer
	startedAt  time.Time
	levelTimer clock.Timer
	readerDone chan struct{}
}

// New returns a Capturer reading from in.
func New(in device.Input, opts ...Option) *Capturer {
	c := &Capturer{
		input:         in,
		clk:           clock.Real{},
		constraints:   device.VoiceConstraints(),
		levelInterval: defaultLevelInterval,
		levels:        make(chan float64, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens the input device and begins emitting frames. A refused
// permission yields an error matching [ErrPermissionDenied].
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return ErrAlreadyActive
	}

	stream, err := c.input.Open(ctx, c.constraints)
	if err != nil {
		if errors.Is(err, device.ErrPermissionDenied) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("capture: open input: %w", err)
	}

	c.stream = stream
	c.buf = newBuffer(stream.Format())
	c.startedAt = c.clk.Now()
	c.readerDone = make(chan struct{})
	c.level.Store(0)
	if c.tap != nil {
		c.tap.Reset()
	}

	go c.readLoop(stream, c.buf, c.readerDone)
	c.levelTimer = c.clk.Every(c.levelInterval, c.publishLevel)

	slog.Debug("capture started", "format", stream.Format().String())
	return nil
}

// Stop halts emission, releases the input device and returns the captured
// buffer together with the wall-clock time elapsed since Start. The device
// is released before Stop returns regardless of what the caller does with the
// buffer afterwards.
func (c *Capturer) Stop() (*Buffer, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil, 0, ErrNotActive
	}

	elapsed := c.clk.Now().Sub(c.startedAt)
	c.levelTimer.Stop()
	closeErr := c.stream.Close()
	<-c.readerDone

	buf := c.buf
	c.stream = nil
	c.buf = nil
	c.levelTimer = nil
	c.level.Store(0)
	c.sendLevel(0)

	if closeErr != nil {
		slog.Warn("capture: releasing input device", "err", closeErr)
	}
	slog.Debug("capture stopped", "frames", buf.Len(), "elapsed", elapsed)
	return buf, elapsed, nil
}

// Active reports whether a capture is running.
func (c *Capturer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Frames returns the number of frames captured so far in the running
// capture, or zero when idle.
func (c *Capturer) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf == nil {
		return 0
	}
	return c.buf.Len()
}

// Levels returns a channel carrying the smoothed 0..1 input level. Only the
// latest value is kept; a slow reader never stalls capture.
func (c *Capturer) Levels() <-chan float64 {
	return c.levels
}

func (c *Capturer) readLoop(stream device.InputStream, buf *Buffer, done chan<- struct{}) {
	defer close(done)

	format := stream.Format()
	channels := max(format.Channels, 1)
	frameLen := FrameSize * channels
	chunk := make([]float32, readChunk*channels)
	pending := make([]float32, 0, frameLen*2)
	meter := audio.NewLevelMeter()
	var emitted time.Duration

	for {
		n, err := stream.Read(chunk)
		if err != nil {
			if !errors.Is(err, device.ErrClosed) {
				slog.Warn("capture: read failed", "err", err)
			}
			return
		}
		pending = append(pending, chunk[:n]...)
		c.level.Store(math.Float64bits(meter.Observe(chunk[:n])))

		for len(pending) >= frameLen {
			samples := make([]float32, frameLen)
			copy(samples, pending[:frameLen])
			pending = append(pending[:0], pending[frameLen:]...)

			frame := audio.Frame{
				Samples:    samples,
				SampleRate: format.SampleRate,
				Channels:   channels,
				Timestamp:  emitted,
			}
			emitted += frame.Duration()

			if c.tap != nil {
				c.tap.Push(frame.Clone())
			}
			buf.Append(frame)
		}
	}
}

func (c *Capturer) publishLevel() {
	c.sendLevel(math.Float64frombits(c.level.Load()))
}

// sendLevel replaces any unread value so that the channel always holds the
// newest level.
func (c *Capturer) sendLevel(v float64) {
	select {
	case <-c.levels:
	default:
	}
	select {
	case c.levels <- v:
	default:
	}
}
