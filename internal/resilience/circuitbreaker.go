// Package resilience provides circuit breakers and provider failover for the
// remote stages of an interview turn: transcription, reply generation and
// speech synthesis.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) driven
// by an injected [clock.Clock]. [FallbackGroup] tries a primary and its
// fallbacks in order, each behind its own breaker. [SynthesisChain] layers the
// voice recovery rules for speech synthesis on top of breakers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/clock"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. One failure
	// re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open state.
	// Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. The
	// default, [CountsAsFailure], ignores caller cancellation.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the lock
	// released.
	OnStateChange func(name string, from, to State)

	// Clock defaults to [clock.Real].
	Clock clock.Clock
}

// CountsAsFailure is the default failure classifier: every error except a
// cancelled or expired caller context trips the breaker.
func CountsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(string, State, State)
	clock         clock.Clock

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		clock:         cfg.Clock,
		state:         StateClosed,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it and returns fn's error unchanged.
// Errors the classifier rejects pass through without being counted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
	}
	if cb.state == StateHalfOpen {
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
	}
	probing := cb.state == StateHalfOpen
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)

	err := fn()

	cb.mu.Lock()
	from = cb.state
	switch {
	case err != nil && cb.isFailure(err):
		cb.recordFailure(probing)
	case err == nil:
		cb.recordSuccess(probing)
	}
	to = cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return err
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probing bool) {
	if probing {
		cb.trip()
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}
	cb.consecutiveFail++
	if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
		cb.trip()
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail)
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probing bool) {
	if probing && cb.state == StateHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}
	cb.consecutiveFail = 0
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.clock.Now()
	cb.consecutiveFail = cb.maxFailures
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.clock.Now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}
