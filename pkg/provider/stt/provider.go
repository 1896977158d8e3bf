// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider receives one finished recording (base64 payload plus its
// container MIME type) and returns the transcript. Whitespace-only text means
// no speech was detected; it is a valid result, not an error.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a request carries no audio payload.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts the recording in req to text.
	//
	// Returns an error if the backend cannot be reached or rejects the audio.
	// A recording without speech yields a Result whose Text is blank.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
