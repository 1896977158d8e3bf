package recording

// State is the recording lifecycle position. Exactly one value holds at a
// time and only [Machine] transitions change it.
type State int

const (
	StateIdle State = iota
	StateArming
	StateRecording
	StateStopping
	StateProcessing
	StateReady
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArming:
		return "arming"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateProcessing:
		return "processing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ButtonLabel returns the record button caption for s.
func (s State) ButtonLabel() string {
	switch s {
	case StateArming:
		return "Starting microphone…"
	case StateRecording:
		return "Stop recording"
	case StateStopping:
		return "Finishing…"
	case StateProcessing:
		return "Transcribing…"
	case StateReady:
		return "Got it"
	default:
		return "Start recording"
	}
}

// ButtonDisabled reports whether the record button ignores taps in s.
func (s State) ButtonDisabled() bool {
	return s == StateStopping || s == StateProcessing
}
