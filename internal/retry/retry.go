// Package retry provides a bounded-attempt backoff combinator for
// flaky external generation calls. It knows nothing about jobs or
// stages; callers supply the attempt cap and a backoff schedule.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff returns the wait duration before the next attempt, given the
// 1-based number of the attempt that just failed.
type Backoff func(attempt int) time.Duration

// Capped returns the schedule delay × min(attempt, cap): backoff grows
// linearly with the attempt number up to a ceiling.
func Capped(delay time.Duration, cap int) Backoff {
	return func(attempt int) time.Duration {
		n := attempt
		if n > cap {
			n = cap
		}
		return delay * time.Duration(n)
	}
}

// CappedScaled returns Capped(delay, cap) further multiplied by the
// attempt number, producing a steeper ramp for cheap idempotent calls.
func CappedScaled(delay time.Duration, cap int) Backoff {
	capped := Capped(delay, cap)
	return func(attempt int) time.Duration {
		return capped(attempt) * time.Duration(attempt)
	}
}

// Do executes op up to maxAttempts times, waiting backoff(attempt)
// between failures. Each attempt is independent; no state carries over.
// The inter-attempt wait honours ctx, so a cancelled context stops the
// loop immediately and returns ctx.Err(). The last attempt's error is
// returned when every attempt fails.
func Do(ctx context.Context, maxAttempts int, backoff Backoff, op func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		wait := time.Duration(0)
		if backoff != nil {
			wait = backoff(attempt)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("operation failed after %d attempts", maxAttempts)
	}
	return lastErr
}
