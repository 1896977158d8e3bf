// Package vad defines the Engine interface for voice activity detection
// backends used by the capture tap.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Sessions keep their own smoothing history so
// that one engine can serve several streams.
//
// ProcessFrame is synchronous. Callers that must not stall (the microphone
// reader) run sessions on a worker goroutine; see capture.VADTap.
package vad

import (
	"errors"
	"fmt"
)

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if the supplied frame does not match.
	FrameSizeMs int

	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Range: [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts as
	// silence while speech is active. Must be <= SpeechThreshold. Typical: 0.35.
	SilenceThreshold float64

	// StartFrames is the number of consecutive speech frames needed before
	// VADSpeechStart is reported. Zero means 3.
	StartFrames int

	// EndFrames is the number of consecutive silence frames needed before
	// VADSpeechEnd is reported. Zero means 30.
	EndFrames int
}

// DefaultConfig returns a 16 kHz, 20 ms configuration suitable for speech.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		FrameSizeMs:      20,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.35,
		StartFrames:      3,
		EndFrames:        30,
	}
}

// FrameBytes returns the expected size in bytes of one 16-bit mono frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame size must be positive, got %d ms", c.FrameSizeMs))
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad: speech threshold %.2f out of range [0,1]", c.SpeechThreshold))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad: silence threshold %.2f must be in [0, speech threshold]", c.SilenceThreshold))
	}
	if c.StartFrames < 0 || c.EndFrames < 0 {
		errs = append(errs, errors.New("vad: frame counts must not be negative"))
	}
	return errors.Join(errs...)
}

// SessionHandle represents an active VAD session for a single audio stream.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single frame of little-endian 16-bit mono PCM
	// at the configured SampleRate and FrameSizeMs.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession creates a new session. It returns an error if cfg is invalid
	// or unsupported by the backend.
	NewSession(cfg Config) (SessionHandle, error)
}
