package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
)

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("write failed")
		})
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state after 3 failures, got %s", cb.State())
	}

	// Further calls are rejected without invoking fn.
	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if !eris.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected fn not to be called, got %d calls", calls)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	fail := func(_ context.Context) error { return errors.New("fail") }
	ok := func(_ context.Context) error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)

	// Never 3 consecutive failures, so still closed.
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	// Advance time past reset timeout.
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open state after timeout, got %s", cb.State())
	}

	// Successful probe closes the circuit.
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure_Reopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	// Failed probe reopens the circuit.
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("still failing")
	})
	if cb.State() != CircuitOpen {
		t.Errorf("expected open state after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})

	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("expected [closed->open], got %v", transitions)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state after reset, got %s", cb.State())
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 50, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(_ context.Context) error {
				if n%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestExecuteVal_PreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int64, error) {
		return 128, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 128 {
		t.Errorf("expected 128, got %d", val)
	}
}

func TestExecuteVal_CircuitOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "should not run", nil
	})
	if !eris.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if val != "" {
		t.Errorf("expected zero value, got %q", val)
	}
}

func TestCircuitState_String(t *testing.T) {
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
