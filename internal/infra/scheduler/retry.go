package scheduler

import (
	"context"
	"time"
)

// ─── Retry Policy ───────────────────────────────────────────────────────────
// A sweep retries one user's reward check on transient storage errors, with
// exponential backoff: BaseDelay * 2^(attempt-1), capped at MaxDelay.

// RetryConfig configures per-user retries inside a sweep.
type RetryConfig struct {
	MaxAttempts int           // total tries per user, including the first
	BaseDelay   time.Duration // delay after the first failure (doubles each retry)
	MaxDelay    time.Duration // cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func (c RetryConfig) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
