package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// wellKnownSitemaps are probed in order when a sitemap source points at a site root.
var wellKnownSitemaps = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap/sitemap.xml"}

var lastmodLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02",
}

// Sitemap selects <url> entries whose <lastmod> is strictly after the cutoff.
// Entries without a parseable lastmod cannot be dated and are never selected.
type Sitemap struct {
	src     harvest.Source
	fetcher harvest.Fetcher
	logger  *zap.Logger
}

// NewSitemap builds a sitemap adapter.
func NewSitemap(src harvest.Source, fetcher harvest.Fetcher, logger *zap.Logger) (*Sitemap, error) {
	if _, err := parseBase(src); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sitemap{src: src, fetcher: fetcher, logger: logger}, nil
}

// ListCandidates implements harvest.SourceAdapter.
func (s *Sitemap) ListCandidates(ctx context.Context, cutoff time.Time) ([]harvest.Candidate, error) {
	doc, err := s.root(ctx)
	if err != nil {
		return nil, err
	}

	docs := []*xmlquery.Node{doc}
	if children := xmlquery.Find(doc, "//sitemapindex/sitemap/loc"); len(children) > 0 {
		docs = docs[:0]
		for _, loc := range children {
			child, err := s.load(ctx, strings.TrimSpace(loc.InnerText()))
			if err != nil {
				// A partial index would let the checkpoint skip past unread entries.
				return nil, err
			}
			docs = append(docs, child)
		}
	}

	var (
		candidates []harvest.Candidate
		undated    int
	)
	for _, d := range docs {
		for _, entry := range xmlquery.Find(d, "//url") {
			locNode := entry.SelectElement("loc")
			if locNode == nil {
				continue
			}
			loc := strings.TrimSpace(locNode.InnerText())
			if loc == "" {
				continue
			}
			lastmod, ok := parseLastmod(entry.SelectElement("lastmod"))
			if !ok {
				undated++
				continue
			}
			if !after(lastmod, cutoff) {
				continue
			}
			candidates = append(candidates, harvest.Candidate{
				SourceID:   s.src.ID,
				Locator:    loc,
				ObservedAt: lastmod,
			})
		}
	}

	s.logger.Debug("sitemap parsed",
		zap.Int("documents", len(docs)),
		zap.Int("candidates", len(candidates)),
		zap.Int("undated", undated),
		zap.Time("cutoff", cutoff),
	)
	return candidates, nil
}

// root loads the configured sitemap, discovering it first when the endpoint
// is a site root rather than an XML document.
func (s *Sitemap) root(ctx context.Context) (*xmlquery.Node, error) {
	if isXMLEndpoint(s.src.Endpoint) {
		return s.load(ctx, s.src.Endpoint)
	}
	base, err := url.Parse(s.src.Endpoint)
	if err != nil {
		return nil, unavailable("parse endpoint %q: %v", s.src.Endpoint, err)
	}
	var lastErr error
	for _, path := range wellKnownSitemaps {
		probe := base.ResolveReference(&url.URL{Path: path}).String()
		doc, err := s.load(ctx, probe)
		if err == nil {
			s.logger.Debug("sitemap discovered", zap.String("url", probe))
			return doc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", harvest.ErrListingUnavailable, ctxErr)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no sitemap found under %s: %w", s.src.Endpoint, lastErr)
}

func (s *Sitemap) load(ctx context.Context, locator string) (*xmlquery.Node, error) {
	body, err := fetchListing(ctx, s.fetcher, harvest.FetchRequest{Locator: locator})
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse sitemap %s: %w: %w", harvest.ErrListingUnavailable, locator, harvest.ErrParseFailure, err)
	}
	return doc, nil
}

func isXMLEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(endpoint), ".xml")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".xml")
}

// parseLastmod accepts W3C datetime forms; date-only values are midnight UTC.
func parseLastmod(node *xmlquery.Node) (time.Time, bool) {
	if node == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(node.InnerText())
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range lastmodLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
