package interview

import (
	"slices"
	"time"
)

// Role identifies who spoke a [Turn].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the conversation. Turns are append-only and never
// modified after they are recorded.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Session is a point-in-time copy of the interview state.
type Session struct {
	ID        string
	PersonaID string
	Language  string
	Skills    []string

	Active bool
	Paused bool

	// RemainingMinutes is the locally tracked balance.
	RemainingMinutes int

	// StartedAt is when the first synthesized line became audible; zero
	// until then.
	StartedAt time.Time

	Turns []Turn
}

// LastTurn returns the most recent turn and whether there is one.
func (s Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

func cloneTurns(t []Turn) []Turn { return slices.Clone(t) }
