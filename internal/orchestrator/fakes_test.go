package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeIDs struct {
	err error
}

func (f fakeIDs) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

// fakeFetcher serves bodies by locator. Locators in block wait for the
// context to finish; unknown locators exhaust their retries.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	block  map[string]bool
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Locator)
	body, ok := f.bodies[req.Locator]
	blocked := f.block[req.Locator]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.Locator, ctx.Err())
	}
	if !ok {
		return harvest.FetchResponse{}, &harvest.FetchError{
			Locator:  req.Locator,
			Attempts: 4,
			Err:      &harvest.StatusError{StatusCode: 503},
		}
	}
	return harvest.FetchResponse{URL: req.Locator, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeAdapter struct {
	mu         sync.Mutex
	candidates []harvest.Candidate
	err        error
	delay      time.Duration
	cutoffs    []time.Time
}

func (a *fakeAdapter) ListCandidates(ctx context.Context, cutoff time.Time) ([]harvest.Candidate, error) {
	a.mu.Lock()
	a.cutoffs = append(a.cutoffs, cutoff)
	a.mu.Unlock()
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", harvest.ErrListingUnavailable, ctx.Err())
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.candidates, nil
}

type sentEvent struct {
	message  string
	severity harvest.Severity
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Send(_ context.Context, message string, severity harvest.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{message: message, severity: severity})
}

func (n *recordingNotifier) Events() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

func (n *recordingNotifier) Last() sentEvent {
	events := n.Events()
	return events[len(events)-1]
}

type failingCheckpoints struct {
	getErr error
	setErr error
	sets   int
}

func (f *failingCheckpoints) Get(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, f.getErr
}

func (f *failingCheckpoints) Set(context.Context, string, time.Time) error {
	f.sets++
	return f.setErr
}

var errStoreDown = errors.New("store down")

func page(paragraphs ...string) string {
	out := "<html><head><title>Post</title></head><body>"
	for _, p := range paragraphs {
		out += "<p>" + p + "</p>"
	}
	return out + "</body></html>"
}
