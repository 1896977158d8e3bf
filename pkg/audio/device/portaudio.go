//go:build portaudio

package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/parley/pkg/audio"
)

// Default returns the PortAudio-backed default input and output devices.
func Default() (Input, Output) {
	return portaudioInput{}, portaudioOutput{}
}

// ─── Input ────────────────────────────────────────────────────────────────────

type portaudioInput struct{}

func (portaudioInput) Open(ctx context.Context, c Constraints) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initialize portaudio: %w", classify(err))
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("device: default input: %w", classify(err))
	}

	rate := c.SampleRate
	if rate <= 0 {
		rate = int(info.DefaultSampleRate)
	}
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	fpb := c.FramesPerBuffer
	if fpb <= 0 {
		fpb = 1024
	}

	buf := make([]float32, fpb*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(rate), fpb, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("device: open input stream: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("device: start input stream: %w", classify(err))
	}

	// PortAudio has no portable switch for OS voice processing; the flags
	// are honoured by platforms that apply it at the device level.
	slog.Debug("microphone opened",
		"device", info.Name,
		"rate", rate,
		"channels", channels,
		"echo_cancellation", c.EchoCancellation,
		"noise_suppression", c.NoiseSuppression,
		"auto_gain", c.AutoGainControl,
	)

	return &portaudioInputStream{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: rate, Channels: channels},
	}, nil
}

type portaudioInputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	format audio.Format
	closed bool
}

func (s *portaudioInputStream) Read(dst []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.stream.Read(); err != nil {
		return 0, fmt.Errorf("device: read: %w", err)
	}
	return copy(dst, s.buf), nil
}

func (s *portaudioInputStream) Format() audio.Format { return s.format }

func (s *portaudioInputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("device: close input: %w", err)
	}
	return nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

type portaudioOutput struct{}

func (portaudioOutput) Open(ctx context.Context, f audio.Format) (OutputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initialize portaudio: %w", classify(err))
	}

	const fpb = 1024
	buf := make([]float32, fpb*f.Channels)
	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), fpb, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("device: open output stream: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("device: start output stream: %w", classify(err))
	}

	slog.Debug("speaker opened", "format", f.String())
	return &portaudioOutputStream{stream: stream, buf: buf, format: f}, nil
}

type portaudioOutputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	format audio.Format
	paused bool
	closed bool
}

func (s *portaudioOutputStream) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("device: write: %w", err)
		}
	}
	return nil
}

func (s *portaudioOutputStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.paused {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("device: pause: %w", err)
	}
	s.paused = true
	return nil
}

func (s *portaudioOutputStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.paused {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("device: resume: %w", err)
	}
	s.paused = false
	return nil
}

func (s *portaudioOutputStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *portaudioOutputStream) Format() audio.Format { return s.format }

func (s *portaudioOutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.paused {
		_ = s.stream.Stop()
	}
	err := s.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("device: close output: %w", err)
	}
	return nil
}
