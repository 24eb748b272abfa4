package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_Attempts(t *testing.T) {
	transient := NewTransientError(errors.New("overloaded"), 529)

	tests := []struct {
		name      string
		attempts  int
		failUntil int // calls before success; -1 never succeeds
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", attempts: 3, failUntil: 0, wantCalls: 1},
		{name: "recovers", attempts: 3, failUntil: 2, err: transient, wantCalls: 3},
		{name: "exhausted", attempts: 3, failUntil: -1, err: transient, wantCalls: 3, wantErr: true},
		{name: "single attempt", attempts: 1, failUntil: -1, err: transient, wantCalls: 1, wantErr: true},
		{name: "permanent", attempts: 3, failUntil: -1, err: errors.New("invalid_request_error"), wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := Do(context.Background(), fastConfig(tt.attempts), func(context.Context) error {
				calls++
				if tt.failUntil < 0 || calls <= tt.failUntil {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond}

	var calls int
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	var retried []int
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	var calls int
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("retry me")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestDoVal(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastConfig(3), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("fail"), 500)
		}
		return "{}", nil
	})
	if err != nil || val != "{}" {
		t.Fatalf("DoVal = %q, %v", val, err)
	}

	n, err := DoVal(context.Background(), fastConfig(2), func(context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 0 {
		t.Errorf("expected zero value on failure, got %d", n)
	}
}

func TestWithAttempts(t *testing.T) {
	if got := WithAttempts(5).MaxAttempts; got != 5 {
		t.Errorf("MaxAttempts = %d, want 5", got)
	}
	if got := WithAttempts(0).MaxAttempts; got != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", got)
	}
	if got := applyDefaults(RetryConfig{}).InitialBackoff; got != 2*time.Second {
		t.Errorf("InitialBackoff = %v, want 2s", got)
	}
}

func TestComputeBackoff(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Multiplier:     2.0,
	})

	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		if got := computeBackoff(i, cfg); got != w*time.Millisecond {
			t.Errorf("attempt %d: got %v, want %v", i, got, w*time.Millisecond)
		}
	}
}

func TestComputeBackoff_Jitter(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, JitterFraction: 0.5})

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		seen[d] = true
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside [500ms, 1500ms]", d)
		}
	}
	if len(seen) < 2 {
		t.Error("expected jitter to vary delays")
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	RetryLogger("anthropic", "kitron")(1, errors.New("overloaded"))
}
