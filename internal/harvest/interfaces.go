package harvest

import (
	"context"
	"io"
	"time"
)

// Transport performs exactly one network round trip.
type Transport interface {
	Do(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Fetcher performs a resilient retrieval. On exhaustion it returns a
// *FetchError wrapping ErrNetworkFailure.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Extractor turns a raw document body into normalized title and text.
type Extractor interface {
	Extract(body []byte) (title string, text string, err error)
	Clean(text string) string
}

// SourceAdapter lists candidates newer than cutoff. A zero cutoff means the
// source has never been checkpointed.
type SourceAdapter interface {
	ListCandidates(ctx context.Context, cutoff time.Time) ([]Candidate, error)
}

// CheckpointStore persists the last fully processed timestamp per source.
type CheckpointStore interface {
	Get(ctx context.Context, sourceID string) (time.Time, bool, error)
	Set(ctx context.Context, sourceID string, at time.Time) error
}

// Notifier delivers progress events. Send never fails the caller.
type Notifier interface {
	Send(ctx context.Context, message string, severity Severity)
}

// Channel is the outbound transport behind a Notifier.
type Channel interface {
	Deliver(ctx context.Context, evt Event) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
