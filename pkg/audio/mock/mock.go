// Package mock provides in-memory implementations of the [device.Input],
// [device.InputStream], [device.Output] and [device.OutputStream] interfaces
// for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewInputStream(audio.Format{SampleRate: 44100, Channels: 1})
//	input := &mock.Input{OpenResult: stream}
//	stream.Feed(make([]float32, 4096))
//	stream.Feed(make([]float32, 4096))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/device"
)

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a mock implementation of [device.Input].
type Input struct {
	mu sync.Mutex

	// OpenResult is returned by Open. A nil OpenResult with a nil OpenErr
	// returns a fresh 48 kHz mono stream.
	OpenResult *InputStream

	// OpenErr is returned by Open.
	OpenErr error

	// OpenCalls records the constraints passed to every Open call.
	OpenCalls []device.Constraints
}

var _ device.Input = (*Input)(nil)

// Open implements [device.Input].
func (i *Input) Open(_ context.Context, c device.Constraints) (device.InputStream, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.OpenCalls = append(i.OpenCalls, c)
	if i.OpenErr != nil {
		return nil, i.OpenErr
	}
	if i.OpenResult == nil {
		i.OpenResult = NewInputStream(audio.Format{SampleRate: 48000, Channels: 1})
	}
	return i.OpenResult, nil
}

// InputStream is a mock [device.InputStream]. Read blocks until a chunk has
// been supplied with [InputStream.Feed] or the stream is closed.
type InputStream struct {
	mu sync.Mutex

	// ReadErr, when set, is returned by Read instead of data.
	ReadErr error

	format  audio.Format
	chunks  chan []float32
	done    chan struct{}
	closeMu sync.Once

	// CallCountRead records how many chunks Read has delivered.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var _ device.InputStream = (*InputStream)(nil)

// NewInputStream returns an open stream reporting format f.
func NewInputStream(f audio.Format) *InputStream {
	return &InputStream{
		format: f,
		chunks: make(chan []float32, 256),
		done:   make(chan struct{}),
	}
}

// Feed queues one chunk of samples for a later Read.
func (s *InputStream) Feed(samples []float32) {
	c := make([]float32, len(samples))
	copy(c, samples)
	select {
	case s.chunks <- c:
	case <-s.done:
	}
}

// Read implements [device.InputStream].
func (s *InputStream) Read(buf []float32) (int, error) {
	s.mu.Lock()
	err := s.ReadErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	select {
	case <-s.done:
		return 0, device.ErrClosed
	case c := <-s.chunks:
		s.mu.Lock()
		s.CallCountRead++
		s.mu.Unlock()
		return copy(buf, c), nil
	}
}

// Format implements [device.InputStream].
func (s *InputStream) Format() audio.Format { return s.format }

// Close implements [device.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()
	s.closeMu.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close has been called.
func (s *InputStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock implementation of [device.Output].
type Output struct {
	mu sync.Mutex

	// OpenResult is returned by Open. A nil OpenResult with a nil OpenErr
	// returns a fresh stream in the requested format.
	OpenResult *OutputStream

	// OpenErr is returned by Open.
	OpenErr error

	// OpenCalls records the formats passed to every Open call.
	OpenCalls []audio.Format
}

var _ device.Output = (*Output)(nil)

// Open implements [device.Output].
func (o *Output) Open(_ context.Context, f audio.Format) (device.OutputStream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCalls = append(o.OpenCalls, f)
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	if o.OpenResult == nil {
		o.OpenResult = &OutputStream{FormatResult: f}
	}
	return o.OpenResult, nil
}

// OutputStream is a mock [device.OutputStream] that accumulates written
// samples in memory.
type OutputStream struct {
	mu sync.Mutex

	// FormatResult is returned by Format.
	FormatResult audio.Format

	// WriteErr is returned by Write when set.
	WriteErr error

	// ResumeErr is returned by Resume when set.
	ResumeErr error

	// Block, when non-nil, makes every Write wait until it is closed.
	Block chan struct{}

	// Written holds every sample passed to Write, in order.
	Written []float32

	// CallCountWrite records how many times Write was called.
	CallCountWrite int

	// CallCountPause records how many times Pause was called.
	CallCountPause int

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	paused     bool
	writing    int
	maxWriting int
}

var _ device.OutputStream = (*OutputStream)(nil)

// Write implements [device.OutputStream].
func (s *OutputStream) Write(samples []float32) error {
	s.mu.Lock()
	block := s.Block
	s.writing++
	s.maxWriting = max(s.maxWriting, s.writing)
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writing--
	s.CallCountWrite++
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.Written = append(s.Written, samples...)
	return nil
}

// Pause implements [device.OutputStream].
func (s *OutputStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPause++
	s.paused = true
	return nil
}

// Resume implements [device.OutputStream].
func (s *OutputStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountResume++
	if s.ResumeErr != nil {
		return s.ResumeErr
	}
	s.paused = false
	return nil
}

// Paused implements [device.OutputStream].
func (s *OutputStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetPaused forces the paused flag without counting a Pause call. Use it to
// simulate an interruption imposed by the OS.
func (s *OutputStream) SetPaused(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = p
}

// Format implements [device.OutputStream].
func (s *OutputStream) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// Close implements [device.OutputStream].
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// MaxConcurrentWrites returns the largest number of Write calls that were in
// progress at the same time.
func (s *OutputStream) MaxConcurrentWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxWriting
}

// Counts returns a consistent snapshot of the call counters.
func (s *OutputStream) Counts() (writes, pauses, resumes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountWrite, s.CallCountPause, s.CallCountResume
}
