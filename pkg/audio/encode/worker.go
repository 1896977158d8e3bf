// Package encode turns captured PCM into a compressed recording off the
// caller's goroutine.
//
// A [Worker] owns one encoding goroutine. Jobs hand their sample slice to the
// worker by move: [Worker.Submit] takes the slice out of the [Job] so the
// submitter cannot touch it again, and no copy is made. The container is
// chosen once per process by [Probe]: Opus in Ogg when an Opus encoder is
// available, 16 kHz WAV otherwise.
package encode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

var (
	// ErrEncodingFailure wraps every codec error returned in a [Result].
	ErrEncodingFailure = errors.New("encode: encoding failed")

	// ErrWorkerClosed is returned for jobs submitted after Close.
	ErrWorkerClosed = errors.New("encode: worker closed")
)

// Job is one capture to encode.
type Job struct {
	// Samples are the interleaved captured samples. Submit takes ownership.
	Samples []float32

	// Format is the native format of Samples.
	Format audio.Format

	// Elapsed is the wall-clock length of the capture. The recording's
	// duration is derived from it rather than from the sample count.
	Elapsed time.Duration
}

// Result is delivered exactly once per submitted job.
type Result struct {
	Recording *Recording
	Err       error

	// Codec names the codec that produced Recording.
	Codec string

	// Took is the time spent encoding.
	Took time.Duration
}

// Option is a functional option for [Worker].
type Option func(*Worker)

// WithCodec pins the codec instead of using [Probe].
func WithCodec(c Codec) Option {
	return func(w *Worker) { w.codec = c }
}

// WithQueue sets how many jobs may wait for the worker. Default: 4.
func WithQueue(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = n
		}
	}
}

type request struct {
	ctx     context.Context
	samples []float32
	format  audio.Format
	elapsed time.Duration
	result  chan Result
}

// Worker encodes jobs sequentially on its own goroutine.
type Worker struct {
	codec Codec
	queue int

	jobs chan request
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	// mu is held shared while a Submit enqueues, and exclusively by Close
	// to set closed, so nothing reaches jobs after the final drain.
	mu     sync.RWMutex
	closed bool
}

// NewWorker starts a worker goroutine.
func NewWorker(opts ...Option) *Worker {
	w := &Worker{queue: 4}
	for _, o := range opts {
		o(w)
	}
	if w.codec == nil {
		w.codec = Probe()
	}
	w.jobs = make(chan request, w.queue)
	w.done = make(chan struct{})

	w.wg.Add(1)
	go w.run()
	return w
}

// Codec returns the codec this worker uses.
func (w *Worker) Codec() Codec { return w.codec }

// Submit moves job's samples to the worker and returns a channel that
// receives exactly one Result. After Submit returns, job.Samples is nil.
func (w *Worker) Submit(ctx context.Context, job *Job) <-chan Result {
	res := make(chan Result, 1)
	req := request{
		ctx:     ctx,
		samples: job.Samples,
		format:  job.Format,
		elapsed: job.Elapsed,
		result:  res,
	}
	job.Samples = nil

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		res <- Result{Err: ErrWorkerClosed}
		return res
	}

	select {
	case w.jobs <- req:
	case <-w.done:
		res <- Result{Err: ErrWorkerClosed}
	case <-ctx.Done():
		res <- Result{Err: fmt.Errorf("encode: submit: %w", ctx.Err())}
	}
	return res
}

// Close stops the worker after the job in progress. Queued jobs receive
// [ErrWorkerClosed].
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.wg.Wait()
		for {
			select {
			case req := <-w.jobs:
				req.result <- Result{Err: ErrWorkerClosed}
			default:
				return
			}
		}
	})
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case req := <-w.jobs:
			req.result <- w.encode(req)
		}
	}
}

func (w *Worker) encode(req request) Result {
	if err := req.ctx.Err(); err != nil {
		return Result{Err: fmt.Errorf("encode: %w", err)}
	}

	seconds := int(math.Round(req.elapsed.Seconds()))
	if len(req.samples) == 0 || seconds == 0 {
		return Result{Recording: NewRecording(nil, w.codec.MIMEType(), seconds), Codec: w.codec.Name()}
	}

	start := time.Now()
	payload, err := w.codec.Encode(req.samples, req.format)
	took := time.Since(start)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s: %w", ErrEncodingFailure, w.codec.Name(), err), Codec: w.codec.Name(), Took: took}
	}

	slog.Debug("encoded recording",
		"codec", w.codec.Name(),
		"bytes", len(payload),
		"duration_s", seconds,
		"took", took,
	)
	return Result{
		Recording: NewRecording(payload, w.codec.MIMEType(), seconds),
		Codec:     w.codec.Name(),
		Took:      took,
	}
}
