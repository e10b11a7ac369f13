// Package source implements the candidate discovery strategies: HTML listing
// pages, XML sitemaps and a GraphQL activity feed.
package source

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// New returns the adapter for src.Kind.
func New(src harvest.Source, fetcher harvest.Fetcher, logger *zap.Logger) (harvest.SourceAdapter, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("source %s: fetcher is required", src.ID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", src.ID), zap.String("kind", string(src.Kind)))

	switch src.Kind {
	case harvest.KindListing:
		return NewListing(src, fetcher, logger)
	case harvest.KindSitemap:
		return NewSitemap(src, fetcher, logger)
	case harvest.KindFeed:
		return NewFeed(src, fetcher, logger)
	default:
		return nil, fmt.Errorf("source %s: unsupported kind %q", src.ID, src.Kind)
	}
}

// fetchListing retrieves a discovery document. Every failure, including
// cancellation, makes the listing unavailable for this run.
func fetchListing(ctx context.Context, fetcher harvest.Fetcher, req harvest.FetchRequest) ([]byte, error) {
	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", harvest.ErrListingUnavailable, err)
	}
	return resp.Body, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", harvest.ErrListingUnavailable, fmt.Sprintf(format, args...))
}

// after applies the strict tie-break shared by every dated strategy.
func after(observed, cutoff time.Time) bool {
	return observed.After(cutoff)
}

func parseBase(src harvest.Source) (*url.URL, error) {
	raw := src.BaseURL
	if raw == "" {
		raw = src.Endpoint
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source %s: invalid base url %q", src.ID, raw)
	}
	if src.BaseURL == "" {
		u = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
	return u, nil
}
