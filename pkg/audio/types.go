// Package audio holds the PCM frame type shared by capture, encoding and
// playback, plus sample conversion and loudness helpers.
package audio

import "time"

// Frame is a fixed-length block of 32-bit float PCM samples captured from an
// input device. Samples are interleaved when Channels > 1 and normalised to
// [-1.0, 1.0].
//
// A Frame is owned by whoever produced it. Hand it to another goroutine with
// [Frame.Clone] so that the receiver owns an independent copy.
type Frame struct {
	// Samples holds the interleaved PCM samples.
	Samples []float32

	// SampleRate is the device's native input rate in Hz (e.g. 44100, 48000).
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	c := f
	c.Samples = make([]float32, len(f.Samples))
	copy(c.Samples, f.Samples)
	return c
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// Format returns the sample rate and channel layout of f.
func (f Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Format describes a PCM layout.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a compact human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}
