// Package retry provides a reusable retry policy: bounded attempts, a
// backoff function, and a retryable-error predicate, with context-aware
// waits between attempts.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff returns the wait before attempt n+1; n counts from 0.
	Backoff func(attempt int) time.Duration
	// Retryable reports whether an error is worth another attempt.
	// A nil predicate retries everything.
	Retryable func(error) bool
	// Sleep waits between attempts. Overridable in tests; a nil Sleep
	// uses a timer that honors ctx cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExponentialBackoff returns a base-2 exponential backoff function:
// base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

// Do runs fn under the policy. It checks ctx before every attempt, so no
// attempt begins after cancellation is observed. The returned error is the
// last attempt's error, wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", op, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return fmt.Errorf("%s failed: %w", op, lastErr)
		}
		if attempt == attempts-1 {
			break
		}

		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return fmt.Errorf("%s canceled during backoff: %w", op, err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
