package audioctx

import (
	"sync"
	"time"
)

// UnlockState records whether audio output has been unlocked by an explicit
// user gesture. One value is shared by every component of a process: it is
// set at most once per session through [UnlockState.MarkUnlocked] and cleared
// by [UnlockState.Reset] when the session ends.
type UnlockState struct {
	mu       sync.Mutex
	unlocked bool
	at       time.Time
}

// NewUnlockState returns a locked state.
func NewUnlockState() *UnlockState { return &UnlockState{} }

// MarkUnlocked records the unlock. It reports whether this call changed the
// state; later calls are no-ops until Reset.
func (u *UnlockState) MarkUnlocked(at time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.unlocked {
		return false
	}
	u.unlocked = true
	u.at = at
	return true
}

// Unlocked reports whether output has been unlocked.
func (u *UnlockState) Unlocked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.unlocked
}

// UnlockedAt returns when the unlock happened, or the zero time.
func (u *UnlockState) UnlockedAt() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.at
}

// Reset returns to the locked state.
func (u *UnlockState) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.unlocked = false
	u.at = time.Time{}
}
