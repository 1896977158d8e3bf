package audioctx

import "fmt"

// EventKind classifies a playback progress report.
type EventKind int

const (
	// EventLoaded means the audio was accepted by the output. It does not
	// mean anything is audible yet.
	EventLoaded EventKind = iota + 1

	// EventAudible means samples are reaching the speaker.
	EventAudible

	// EventBlocked means output refused to start until the user unlocks it.
	EventBlocked

	// EventEnded means the utterance played to completion.
	EventEnded

	// EventError means playback failed.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventAudible:
		return "audible"
	case EventBlocked:
		return "blocked"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports playback progress for the utterance started with Token.
type Event struct {
	Token uint64
	Kind  EventKind
	Err   error
}

// Signal is a host notification that output may have been suspended behind
// the program's back.
type Signal int

const (
	SignalVisibility Signal = iota + 1
	SignalFocus
	SignalPageRestore
	SignalInterruptionEnded
)

func (s Signal) String() string {
	switch s {
	case SignalVisibility:
		return "visibility"
	case SignalFocus:
		return "focus"
	case SignalPageRestore:
		return "page-restore"
	case SignalInterruptionEnded:
		return "interruption-ended"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}
