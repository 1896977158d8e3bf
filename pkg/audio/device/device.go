// Package device defines the boundary between Parley and the host's audio
// hardware: a microphone [Input] and a speaker [Output].
//
// The production implementation uses PortAudio and is only compiled with the
// "portaudio" build tag. Without the tag, [Default] returns devices that fail
// with [ErrUnavailable] so the rest of the program (and its tests) build on
// machines without the native library.
package device

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/parley/pkg/audio"
)

// Sentinel errors reported by device implementations.
var (
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("device: permission denied")

	// ErrUnavailable means no usable device exists or the audio backend is
	// not compiled in.
	ErrUnavailable = errors.New("device: audio device unavailable")

	// ErrClosed is returned by stream operations after Close.
	ErrClosed = errors.New("device: stream closed")
)

// Constraints describes what the caller wants from an input device. Zero
// SampleRate and Channels select the device's native format.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool

	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// VoiceConstraints returns the constraints used for interview capture: all
// speech processing enabled, native rate, mono.
func VoiceConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		Channels:         1,
		FramesPerBuffer:  1024,
	}
}

// Input opens microphone streams.
type Input interface {
	// Open acquires the input device. Implementations return an error
	// wrapping [ErrPermissionDenied] when access is refused.
	Open(ctx context.Context, c Constraints) (InputStream, error)
}

// InputStream is an open, running microphone stream. It is owned by exactly
// one reader.
type InputStream interface {
	// Read blocks until the next chunk of samples is available and copies it
	// into buf, returning the number of samples written.
	Read(buf []float32) (int, error)

	// Format reports the stream's actual sample rate and channel count.
	Format() audio.Format

	// Close stops the stream and releases the device. It is safe to call more
	// than once.
	Close() error
}

// Output opens speaker streams.
type Output interface {
	Open(ctx context.Context, f audio.Format) (OutputStream, error)
}

// OutputStream is an open speaker stream.
type OutputStream interface {
	// Write blocks until samples have been queued to the device.
	Write(samples []float32) error

	// Pause suspends the device without discarding the stream.
	Pause() error

	// Resume restarts a paused stream.
	Resume() error

	// Paused reports whether the stream is currently suspended.
	Paused() bool

	Format() audio.Format

	Close() error
}

// classify maps backend error text onto the package sentinels. PortAudio and
// the OS audio services report refusals only as strings.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not permitted"),
		strings.Contains(msg, "access denied"):
		return errors.Join(ErrPermissionDenied, err)
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "no default"),
		strings.Contains(msg, "invalid device"):
		return errors.Join(ErrUnavailable, err)
	default:
		return err
	}
}
