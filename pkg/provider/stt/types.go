package stt

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Request is one transcription call.
type Request struct {
	// AudioBase64 is the encoded recording in standard base64.
	AudioBase64 string

	// MIMEType names the container, e.g. "audio/ogg; codecs=opus" or
	// "audio/wav".
	MIMEType string

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string
}

// Audio decodes AudioBase64. It returns [ErrEmptyAudio] when there is nothing
// to transcribe.
func (r Request) Audio() ([]byte, error) {
	if r.AudioBase64 == "" {
		return nil, ErrEmptyAudio
	}
	b, err := base64.StdEncoding.DecodeString(r.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("stt: decode audio: %w", err)
	}
	if len(b) == 0 {
		return nil, ErrEmptyAudio
	}
	return b, nil
}

// FileName returns an upload file name whose extension matches MIMEType.
func (r Request) FileName() string {
	switch {
	case strings.HasPrefix(r.MIMEType, "audio/ogg"):
		return "recording.ogg"
	case strings.HasPrefix(r.MIMEType, "audio/webm"):
		return "recording.webm"
	case strings.HasPrefix(r.MIMEType, "audio/mpeg"):
		return "recording.mp3"
	default:
		return "recording.wav"
	}
}

// BaseLanguage returns the primary subtag of Language ("en" for "en-US").
func (r Request) BaseLanguage() string {
	lang, _, _ := strings.Cut(r.Language, "-")
	return strings.ToLower(lang)
}

// Result is the outcome of a transcription.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the language the provider detected or used, if reported.
	Language string

	// Duration is the audio length the provider reported, if any.
	Duration time.Duration
}

// NoSpeech reports whether the result contains no words.
func (r Result) NoSpeech() bool {
	return strings.TrimSpace(r.Text) == ""
}
