package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

const (
	headlineSelector  = `a[data-key="card-headline"]`
	cardSelector      = "div.CardHeadline"
	timestampSelector = `span[data-key="timestamp"]`
	timestampAttr     = "data-source"
	timestampLayout   = "2006-01-02T15:04:05Z"
)

// Listing discovers article links on a single HTML hub page. Cards that carry
// a timestamp are filtered against the cutoff; undated cards are always
// returned and rely on URL dedup downstream.
type Listing struct {
	src     harvest.Source
	fetcher harvest.Fetcher
	base    *url.URL
	logger  *zap.Logger
}

// NewListing builds a listing adapter. Relative links resolve against
// src.BaseURL, or the endpoint's origin when unset.
func NewListing(src harvest.Source, fetcher harvest.Fetcher, logger *zap.Logger) (*Listing, error) {
	base, err := parseBase(src)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listing{src: src, fetcher: fetcher, base: base, logger: logger}, nil
}

// ListCandidates implements harvest.SourceAdapter.
func (l *Listing) ListCandidates(ctx context.Context, cutoff time.Time) ([]harvest.Candidate, error) {
	body, err := fetchListing(ctx, l.fetcher, harvest.FetchRequest{Locator: l.src.Endpoint})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", harvest.ErrListingUnavailable, harvest.ErrParseFailure, err)
	}

	seen := make(map[string]struct{})
	var (
		candidates []harvest.Candidate
		stale      int
	)
	doc.Find(headlineSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		locator, err := l.resolve(href)
		if err != nil {
			l.logger.Debug("skipping unresolvable headline link", zap.String("href", href), zap.Error(err))
			return
		}
		if _, dup := seen[locator]; dup {
			return
		}
		seen[locator] = struct{}{}

		observed, dated := cardTimestamp(a)
		if dated && !after(observed, cutoff) {
			stale++
			return
		}
		candidates = append(candidates, harvest.Candidate{
			SourceID:   l.src.ID,
			Locator:    locator,
			ObservedAt: observed,
		})
	})

	l.logger.Debug("listing parsed",
		zap.Int("candidates", len(candidates)),
		zap.Int("stale", stale),
		zap.Time("cutoff", cutoff),
	)
	return candidates, nil
}

func (l *Listing) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return l.base.ResolveReference(ref).String(), nil
}

// cardTimestamp returns the timestamp of the card enclosing a headline link.
// Unparseable timestamps count as undated.
func cardTimestamp(a *goquery.Selection) (time.Time, bool) {
	card := a.Closest(cardSelector)
	if card.Length() == 0 {
		return time.Time{}, false
	}
	raw, ok := card.Find(timestampSelector).First().Attr(timestampAttr)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(timestampLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
