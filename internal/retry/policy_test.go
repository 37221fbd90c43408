package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(1 * time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(1 * time.Second),
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	calls := 0
	err := p.Do(context.Background(), "advice request", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(time.Millisecond),
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	sentinel := errors.New("still broken")
	err := p.Do(context.Background(), "advice request", func() error {
		calls++
		return sentinel
	})
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Do() error = %v, want wrapped sentinel", err)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	permanent := errors.New("bad request")
	p := Policy{
		MaxAttempts: 5,
		Backoff:     ExponentialBackoff(time.Millisecond),
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	err := p.Do(context.Background(), "advice request", func() error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want 1: non-retryable errors must not be retried", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("Do() error = %v, want wrapped permanent error", err)
	}
}

func TestDo_CanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 3}
	calls := 0
	err := p.Do(ctx, "advice request", func() error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("fn called %d times, want 0: no attempt may start after cancellation", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(time.Hour),
	}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "advice request", func() error {
			calls++
			return errors.New("transient")
		})
	}()

	// Give the first attempt time to fail and enter backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancellation during backoff")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDo_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	p := Policy{}
	calls := 0
	if err := p.Do(context.Background(), "op", func() error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}
