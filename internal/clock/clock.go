// Package clock abstracts wall-clock time and timers so that components with
// debounce windows, expiry timers and periodic quota ticks can be driven by
// simulated time in tests.
//
// [Real] delegates to the time package. [Fake] only moves when
// [Fake.Advance] is called and runs due callbacks synchronously on the
// caller's goroutine, in deadline order.
package clock

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback returned by [Clock.AfterFunc] and
// [Clock.Every].
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented a pending
	// callback from running. Calling Stop more than once is safe.
	Stop() bool
}

// Clock is the time source injected into every component that owns timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc runs f once, on its own goroutine (Real) or inside Advance
	// (Fake), after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// Every runs f repeatedly with period d until the returned Timer is
	// stopped. The first call happens after one full period.
	Every(d time.Duration, f func()) Timer
}

// ─── Real ────────────────────────────────────────────────────────────────────

// Real is the production [Clock] backed by the time package.
type Real struct{}

var _ Clock = Real{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Every starts a goroutine driven by a time.Ticker.
func (Real) Every(d time.Duration, f func()) Timer {
	t := &realTicker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				f()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

// ─── Fake ────────────────────────────────────────────────────────────────────

// Fake is a manually advanced [Clock] for tests. The zero value is not
// usable; create one with [NewFake].
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

var _ Clock = (*Fake)(nil)

// NewFake returns a Fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

type fakeTimer struct {
	clock   *Fake
	due     time.Time
	period  time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Now returns the simulated current time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once when the clock has been advanced by d.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	return c.schedule(d, 0, f)
}

// Every schedules f to run each time the clock crosses a multiple of d.
func (c *Fake) Every(d time.Duration, f func()) Timer {
	return c.schedule(d, d, f)
}

func (c *Fake) schedule(d, period time.Duration, f func()) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, due: c.now.Add(d), period: period, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, running every callback that falls due
// along the way. Callbacks run without the clock's lock held, so they may
// schedule or stop other timers.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.due
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			next.stopped = true
		}
		f := next.f
		c.mu.Unlock()

		f()
	}
}

// Pending reports how many timers are still scheduled.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// nextDue returns the earliest live timer due at or before target, pruning
// stopped timers. Must be called with c.mu held.
func (c *Fake) nextDue(target time.Time) *fakeTimer {
	live := c.timers[:0]
	var next *fakeTimer
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if t.due.After(target) {
			continue
		}
		if next == nil || t.due.Before(next.due) {
			next = t
		}
	}
	c.timers = live
	return next
}
