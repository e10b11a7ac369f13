package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinearRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(3, 0)
	require.Equal(t, 4, p.MaxAttempts())

	ctx := context.Background()
	transient := errors.New("transient")
	require.True(t, p.ShouldRetry(ctx, transient, 1))
	require.True(t, p.ShouldRetry(ctx, transient, 3))
	require.False(t, p.ShouldRetry(ctx, transient, 4))
	require.False(t, p.ShouldRetry(ctx, nil, 1))

	clientTimeout := fmt.Errorf("post webhook: %w", context.DeadlineExceeded)
	require.True(t, p.ShouldRetry(ctx, clientTimeout, 1))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.False(t, p.ShouldRetry(canceled, clientTimeout, 1))
	require.False(t, p.ShouldRetry(canceled, transient, 1))
}

func TestLinearRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(-1, -1)
	require.Equal(t, DefaultMaxRetries, p.MaxRetries)
	require.Equal(t, DefaultRetryDelay, p.Delay)
}

func TestLinearRetryPolicyWaitObservesCancellation(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestLinearRetryPolicyWaitSleeps(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(1, 20*time.Millisecond)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
