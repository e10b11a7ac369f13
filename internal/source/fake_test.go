package source

import (
	"context"
	"sync"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

type fakeFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	requests []harvest.FetchRequest
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	body, ok := f.bodies[req.Locator]
	if !ok {
		return harvest.FetchResponse{}, &harvest.FetchError{
			Locator:  req.Locator,
			Attempts: 4,
			Err:      &harvest.StatusError{StatusCode: 404},
		}
	}
	return harvest.FetchResponse{URL: req.Locator, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) locators() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Locator)
	}
	return out
}

func locatorsOf(candidates []harvest.Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Locator)
	}
	return out
}
