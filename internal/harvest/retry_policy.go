package harvest

import (
	"context"
	"fmt"
	"time"
)

// Default retry bounds for fetches and notifications.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// LinearRetryPolicy retries a fixed number of times with a fixed delay.
// Attempts are numbered from 1; MaxRetries=3 allows 4 attempts in total.
type LinearRetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// NewLinearRetryPolicy builds a policy, applying defaults for negative values.
func NewLinearRetryPolicy(maxRetries int, delay time.Duration) LinearRetryPolicy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	return LinearRetryPolicy{MaxRetries: maxRetries, Delay: delay}
}

// MaxAttempts is the total number of tries, including the first.
func (p LinearRetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// ShouldRetry decides whether another attempt follows attempt. Retries stop
// once ctx has ended; an err that merely wraps a deadline (a client timeout)
// is retried while ctx is live.
func (p LinearRetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return attempt < p.MaxAttempts()
}

// Wait sleeps for the inter-attempt delay. It returns early with the
// context error if ctx finishes first.
func (p LinearRetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry wait: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
