// Package dispatcher contains tests for bounded fan-out.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEachRunsEveryTask ensures every index is visited exactly once.
func TestEachRunsEveryTask(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
	)
	err := New(3).Each(context.Background(), 25, func(_ context.Context, i int) {
		mu.Lock()
		defer mu.Unlock()
		seen[i]++
	})
	require.NoError(t, err)
	require.Len(t, seen, 25)
	for i, count := range seen {
		require.Equal(t, 1, count, "index %d", i)
	}
}

// TestEachBoundsConcurrency verifies no more than the pool size run at once.
func TestEachBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	err := New(2).Each(context.Background(), 10, func(_ context.Context, _ int) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	})
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Positive(t, peak.Load())
}

// TestEachStopsOnCancel ensures no new work starts after the context ends.
func TestEachStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	err := New(1).Each(ctx, 100, func(_ context.Context, i int) {
		started.Add(1)
		if i == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, started.Load(), int32(100))
}

// TestNewDefaultsPoolSize covers the non-positive fallback.
func TestNewDefaultsPoolSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultWorkers, New(0).Workers())
	require.Equal(t, 7, New(7).Workers())
}
