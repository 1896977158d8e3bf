package tts

import (
	"encoding/base64"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// Request is one synthesis call.
type Request struct {
	Text string

	// VoiceID is provider specific. Empty selects the provider default.
	VoiceID string

	// Language is a BCP-47 tag hint (e.g. "en-US"). Providers that cannot use
	// it ignore it.
	Language string
}

// Speech is a synthesised utterance as little-endian 16-bit PCM.
type Speech struct {
	Audio  []byte
	Format audio.Format

	// Voice and Provider identify what actually produced the audio, which
	// may differ from the request after a fallback.
	Voice    string
	Provider string
}

// Base64 returns Audio in standard base64 encoding.
func (s *Speech) Base64() string {
	return base64.StdEncoding.EncodeToString(s.Audio)
}

// Samples returns Audio as normalised float samples.
func (s *Speech) Samples() []float32 {
	return audio.Int16ToFloat(audio.BytesToInt16(s.Audio))
}

// Duration returns the playback length of the speech.
func (s *Speech) Duration() time.Duration {
	if s.Format.SampleRate <= 0 || s.Format.Channels <= 0 {
		return 0
	}
	frames := len(s.Audio) / 2 / s.Format.Channels
	return time.Duration(frames) * time.Second / time.Duration(s.Format.SampleRate)
}

// Voice describes one voice offered by a provider.
type Voice struct {
	ID       string
	Name     string
	Provider string

	// Metadata holds provider-specific attributes (gender, accent, ...).
	Metadata map[string]string
}
