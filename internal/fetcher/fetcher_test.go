package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

type scriptedTransport struct {
	mu    sync.Mutex
	calls int
	fails int
	err   error
	code  int
}

func (s *scriptedTransport) Do(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		if s.code != 0 {
			return harvest.FetchResponse{URL: req.Locator, StatusCode: s.code}, nil
		}
		return harvest.FetchResponse{}, s.err
	}
	return harvest.FetchResponse{URL: req.Locator, StatusCode: 200, Body: []byte("ok")}, nil
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (c *countingLimiter) Wait(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits++
	return nil
}

func TestFetchSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{fails: 2, err: errors.New("connection reset")}
	limiter := &countingLimiter{}
	f := New(transport, harvest.NewLinearRetryPolicy(3, 0), limiter, nil)

	resp, err := f.Fetch(context.Background(), harvest.FetchRequest{Locator: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Attempts)
	require.Equal(t, []byte("ok"), resp.Body)
	require.Equal(t, 3, transport.Calls())
	require.Equal(t, 3, limiter.waits)
}

func TestFetchExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	t.Parallel()

	for _, maxRetries := range []int{0, 1, 3} {
		transport := &scriptedTransport{fails: 100, err: errors.New("unreachable")}
		f := New(transport, harvest.NewLinearRetryPolicy(maxRetries, 0), nil, nil)

		_, err := f.Fetch(context.Background(), harvest.FetchRequest{Locator: "https://example.com/down"})
		require.Error(t, err)
		require.ErrorIs(t, err, harvest.ErrNetworkFailure)
		require.Equal(t, harvest.KindNetworkFailure, harvest.KindOf(err))
		require.True(t, IsExhausted(err))

		var fetchErr *harvest.FetchError
		require.ErrorAs(t, err, &fetchErr)
		require.Equal(t, maxRetries+1, fetchErr.Attempts)
		require.Equal(t, maxRetries+1, transport.Calls())
	}
}

func TestFetchTreatsNon2xxAsFailure(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{fails: 100, code: 503}
	f := New(transport, harvest.NewLinearRetryPolicy(1, 0), nil, nil)

	_, err := f.Fetch(context.Background(), harvest.FetchRequest{Locator: "https://example.com/busy"})
	var statusErr *harvest.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 503, statusErr.StatusCode)
	require.Equal(t, 2, transport.Calls())
}

func TestFetchCancellationDuringWaitStopsRetrying(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{fails: 100, err: errors.New("boom")}
	f := New(transport, harvest.NewLinearRetryPolicy(3, time.Hour), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, harvest.FetchRequest{Locator: "https://example.com/slow"})
	require.Error(t, err)
	require.True(t, harvest.IsCanceled(err))
	require.False(t, IsExhausted(err))
	require.Equal(t, 1, transport.Calls())
	require.Less(t, time.Since(start), time.Second)
}

func TestFetchCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{}
	f := New(transport, harvest.NewLinearRetryPolicy(3, 0), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, harvest.FetchRequest{Locator: "https://example.com/"})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, transport.Calls())
}
