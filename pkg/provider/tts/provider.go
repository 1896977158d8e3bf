// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider turns one reply into a complete block of 16-bit PCM speech.
// Replies are short, so synthesis is request/response: the whole utterance is
// returned once the backend has finished, and playback starts from there.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"strings"
)

// ErrVoiceInvalid reports that the requested voice does not exist or cannot
// be used with the configured account. Callers recover by retrying with the
// provider's [Provider.DefaultVoice].
var ErrVoiceInvalid = errors.New("tts: voice invalid")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text with req.VoiceID. An empty VoiceID selects
	// DefaultVoice. Errors caused by an unusable voice wrap [ErrVoiceInvalid].
	Synthesize(ctx context.Context, req Request) (*Speech, error)

	// DefaultVoice returns the hard-coded voice that is always available for
	// this provider.
	DefaultVoice() string
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// IsVoiceInvalid reports whether err signals an unusable voice. Besides
// [ErrVoiceInvalid] it recognises the messages remote services return for
// unknown voice identifiers.
func IsVoiceInvalid(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrVoiceInvalid) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range voiceInvalidMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var voiceInvalidMarkers = []string{
	"voice_not_found",
	"voice not found",
	"invalid voice",
	"invalid_voice",
	"voice_id_does_not_exist",
}
