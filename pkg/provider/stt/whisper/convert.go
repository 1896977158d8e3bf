package whisper

import (
	"fmt"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/encode"
	"github.com/MrWong99/parley/pkg/provider/stt"
)

const (
	// sampleRate is the only input rate whisper.cpp accepts.
	sampleRate = 16000

	// speechRMS is the window RMS (normalised) above which audio is treated
	// as speech. Roughly 300 in 16-bit PCM units.
	speechRMS = 0.009

	// windowSamples is the 20 ms analysis window at 16 kHz.
	windowSamples = sampleRate / 50
)

// loadSamples decodes the request's container into 16 kHz mono floats.
func loadSamples(req stt.Request) ([]float32, error) {
	payload, err := req.Audio()
	if err != nil {
		return nil, err
	}
	samples, rate, err := encode.DecodePayload(payload, req.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", req.MIMEType, err)
	}
	return audio.Resample(samples, rate, sampleRate), nil
}

// hasSpeech reports whether any 20 ms window of samples rises above the
// silence floor. whisper.cpp tends to hallucinate text for pure silence, so
// silent recordings are answered without inference.
func hasSpeech(samples []float32) bool {
	for start := 0; start < len(samples); start += windowSamples {
		end := min(start+windowSamples, len(samples))
		if audio.RMS(samples[start:end]) >= speechRMS {
			return true
		}
	}
	return false
}

// whisperLanguage maps a BCP-47 tag to whisper's two-letter code. Empty
// selects auto-detection.
func whisperLanguage(req stt.Request, fallback string) string {
	if lang := req.BaseLanguage(); lang != "" {
		return lang
	}
	if fallback == "" {
		return "auto"
	}
	return fallback
}
