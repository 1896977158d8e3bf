package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/vad"
)

const defaultTapQueue = 32

// TapOption is a functional option for [VADTap].
type TapOption func(*VADTap)

// WithQueueDepth sets how many frames may wait for the worker before new
// frames are dropped. Default: 32.
func WithQueueDepth(n int) TapOption {
	return func(t *VADTap) {
		if n > 0 {
			t.queue = n
		}
	}
}

// WithOnEvent registers a callback invoked on the worker goroutine whenever
// the detector reports the start or end of speech.
func WithOnEvent(fn func(vad.Event)) TapOption {
	return func(t *VADTap) { t.onEvent = fn }
}

// VADTap scores captured frames for voice activity on a background worker.
// It is fire-and-forget: Push never blocks, and detector errors or panics are
// logged and swallowed so they can never reach the capture loop.
type VADTap struct {
	sess    vad.SessionHandle
	cfg     vad.Config
	queue   int
	onEvent func(vad.Event)

	frames  chan audio.Frame
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	reset   atomic.Bool
	dropped atomic.Int64
	scored  atomic.Int64
}

// NewVADTap creates a session on engine and starts the worker goroutine.
func NewVADTap(engine vad.Engine, cfg vad.Config, opts ...TapOption) (*VADTap, error) {
	sess, err := engine.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("capture: create vad session: %w", err)
	}
	t := &VADTap{sess: sess, cfg: cfg, queue: defaultTapQueue}
	for _, o := range opts {
		o(t)
	}
	t.frames = make(chan audio.Frame, t.queue)
	t.done = make(chan struct{})

	t.wg.Add(1)
	go t.run()
	return t, nil
}

// Push hands frame to the worker. The tap takes ownership of frame. When the
// queue is full the frame is dropped and Push returns false.
func (t *VADTap) Push(frame audio.Frame) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.frames <- frame:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Reset asks the worker to discard partial state before the next frame.
func (t *VADTap) Reset() {
	t.reset.Store(true)
}

// Dropped returns how many frames were discarded because the queue was full.
func (t *VADTap) Dropped() int64 { return t.dropped.Load() }

// Scored returns how many detector frames have been processed.
func (t *VADTap) Scored() int64 { return t.scored.Load() }

// Close stops the worker and closes the detector session. Frames still queued
// are discarded. Close is idempotent.
func (t *VADTap) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		t.wg.Wait()
		err = t.sess.Close()
	})
	return err
}

func (t *VADTap) run() {
	defer t.wg.Done()

	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: t.cfg.SampleRate, Channels: 1}}
	step := t.cfg.FrameBytes() / 2
	var pending []int16

	for {
		select {
		case <-t.done:
			return
		case frame := <-t.frames:
			if t.reset.Swap(false) {
				pending = pending[:0]
				t.sess.Reset()
			}
			pending = t.score(conv, frame, pending, step)
		}
	}
}

// score feeds frame through the detector in step-sized chunks and returns the
// unconsumed remainder. A panic inside the detector discards the frame and
// resets the session.
func (t *VADTap) score(conv *audio.FormatConverter, frame audio.Frame, pending []int16, step int) (rest []int16) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("vad tap: detector panicked", "panic", r)
			t.sess.Reset()
			rest = pending[:0]
		}
	}()

	pcm := audio.FloatToInt16(conv.Convert(frame).Samples)
	pending = append(pending, pcm...)
	for len(pending) >= step {
		ev, err := t.sess.ProcessFrame(audio.Int16ToBytes(pending[:step]))
		pending = pending[step:]
		t.scored.Add(1)
		if err != nil {
			slog.Debug("vad tap: process frame", "err", err)
			continue
		}
		if t.onEvent != nil && (ev.Type == vad.SpeechStart || ev.Type == vad.SpeechEnd) {
			t.onEvent(ev)
		}
	}
	// Compact so the backing array does not grow without bound.
	return append(pending[:0:0], pending...)
}
