package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/clock"
)

var errTest = errors.New("test error")

func newTestBreaker(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Unix(0, 0))
	cfg.Clock = fc
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	return NewCircuitBreaker(cfg), fc
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if _, ok := cb.clock.(clock.Real); !ok {
		t.Errorf("clock = %T, want clock.Real", cb.clock)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.Name() != "test" {
		t.Errorf("Name() = %q, want %q", cb.Name(), "test")
	}
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	t.Parallel()
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})

	for range 3 {
		if err := cb.Execute(fail); !errors.Is(err, errTest) {
			t.Fatalf("Execute error = %v, want errTest passed through", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while breaker was open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{MaxFailures: 3})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 consecutive failures", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()
	cb, fc := newTestBreaker(t, CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Second,
		HalfOpenMax:  2,
	})

	_ = cb.Execute(fail)
	fc.Advance(9 * time.Second)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v before timeout, want open", cb.State())
	}
	fc.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v after timeout, want half-open", cb.State())
	}

	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v after one probe, want half-open", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after probes, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	cb, fc := newTestBreaker(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})

	_ = cb.Execute(fail)
	fc.Advance(time.Second)
	_ = cb.Execute(fail)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen until the timeout restarts", err)
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()
	cb, fc := newTestBreaker(t, CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
	})
	_ = cb.Execute(fail)
	fc.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second concurrent probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	t.Parallel()
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{MaxFailures: 1})

	err := cb.Execute(func() error {
		return fmt.Errorf("stt: transcribe: %w", context.Canceled)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed: cancellation is not a failure", cb.State())
	}
}

func TestCircuitBreaker_CustomClassifier(t *testing.T) {
	t.Parallel()
	errBenign := errors.New("benign")
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errBenign) },
	})

	_ = cb.Execute(func() error { return errBenign })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after benign error, want closed", cb.State())
	}
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after counted failure, want open", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	type change struct{ from, to State }
	var (
		mu      sync.Mutex
		changes []change
	)
	cb, fc := newTestBreaker(t, CircuitBreakerConfig{
		Name:         "stt/openai",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(name string, from, to State) {
			if name != "stt/openai" {
				t.Errorf("name = %q, want stt/openai", name)
			}
			mu.Lock()
			changes = append(changes, change{from, to})
			mu.Unlock()
		},
	})

	_ = cb.Execute(fail)
	fc.Advance(time.Second)
	_ = cb.Execute(succeed)

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(fail)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after Reset, want closed", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
