package vad

// Event is the voice activity detection result for a single audio frame.
type Event struct {
	Type EventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns the lower-case name of t.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}
