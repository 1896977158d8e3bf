package interview

import (
	"errors"
	"fmt"
)

// EventKind classifies an [Event].
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventTranscript
	EventNoSpeech
	EventReply
	EventSpeechSkipped
	EventQuotaTick
	EventZeroMinutes
	EventPaused
	EventResumed
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventTranscript:
		return "transcript"
	case EventNoSpeech:
		return "no_speech"
	case EventReply:
		return "reply"
	case EventSpeechSkipped:
		return "speech_skipped"
	case EventQuotaTick:
		return "quota_tick"
	case EventZeroMinutes:
		return "zero_minutes"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Stages reported in [Event.Stage] for errors.
const (
	StageQuota      = "quota"
	StageTranscribe = "transcribe"
	StageReply      = "reply"
	StageSpeak      = "speak"
)

// Event is emitted by the [Orchestrator] as a turn progresses.
type Event struct {
	Kind EventKind

	// Text carries the transcript or reply.
	Text string

	// Minutes is the balance after a quota change.
	Minutes int

	// Stage names the failing step for EventError.
	Stage string

	Err error
}

// Message returns the user-facing line for the event. Failure messages always
// say what to do next.
func (e Event) Message() string {
	switch e.Kind {
	case EventStarted:
		return fmt.Sprintf("Interview started. %d minutes left. Press Enter to answer.", e.Minutes)
	case EventNoSpeech:
		return "No speech detected. Press Enter and speak closer to the microphone."
	case EventQuotaTick:
		if e.Minutes == 1 {
			return "1 minute left."
		}
		return fmt.Sprintf("%d minutes left.", e.Minutes)
	case EventZeroMinutes:
		return "You are out of interview minutes. Press e to end the session or q to quit."
	case EventPaused:
		return "Interview paused. Press p to continue."
	case EventResumed:
		return "Interview resumed. Press Enter to answer."
	case EventEnded:
		return "Interview ended. Press Enter to start a new one."
	case EventError:
		return errorMessage(e.Stage, e.Err)
	default:
		return ""
	}
}

func errorMessage(stage string, err error) string {
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return "You are out of interview minutes. Press e to end the session or q to quit."
	case stage == StageTranscribe:
		return "Your answer could not be transcribed. Press Enter to record it again."
	case stage == StageReply:
		return "The interviewer could not respond. Press Enter to answer again."
	case stage == StageSpeak:
		return "The reply could not be played. Press Enter to continue, or read it above."
	case stage == StageQuota:
		return "Your remaining minutes could not be loaded. Check your connection and press Enter to retry."
	default:
		return "Something went wrong. Press Enter to try again."
	}
}
