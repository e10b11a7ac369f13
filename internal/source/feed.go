package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// DefaultFeedQuery requests recent activities with their content items.
const DefaultFeedQuery = `{ activities(lang: "en") { datetime content { id title content } } }`

// DefaultURLTemplate renders feed item ids into public document URLs.
const DefaultURLTemplate = "https://iq.wiki/wiki/{id}"

type feedRequest struct {
	Query string `json:"query"`
}

type feedResponse struct {
	Data struct {
		Activities []feedActivity `json:"activities"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type feedActivity struct {
	Datetime string        `json:"datetime"`
	Content  []feedContent `json:"content"`
}

type feedContent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Feed queries a GraphQL activity feed. Activities are grouped by content id,
// keeping the latest one, and selected when that timestamp is after the cutoff.
type Feed struct {
	src      harvest.Source
	fetcher  harvest.Fetcher
	query    string
	template string
	logger   *zap.Logger
}

// NewFeed builds an activity-feed adapter.
func NewFeed(src harvest.Source, fetcher harvest.Fetcher, logger *zap.Logger) (*Feed, error) {
	if _, err := parseBase(src); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	query := src.Query
	if strings.TrimSpace(query) == "" {
		query = DefaultFeedQuery
	}
	template := src.URLTemplate
	if template == "" {
		template = DefaultURLTemplate
	}
	if !strings.Contains(template, "{id}") {
		return nil, fmt.Errorf("source %s: url template %q lacks {id}", src.ID, template)
	}
	return &Feed{src: src, fetcher: fetcher, query: query, template: template, logger: logger}, nil
}

// ListCandidates implements harvest.SourceAdapter.
func (f *Feed) ListCandidates(ctx context.Context, cutoff time.Time) ([]harvest.Candidate, error) {
	payload, err := json.Marshal(feedRequest{Query: f.query})
	if err != nil {
		return nil, fmt.Errorf("encode feed query: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	body, err := fetchListing(ctx, f.fetcher, harvest.FetchRequest{
		Locator: f.src.Endpoint,
		Method:  http.MethodPost,
		Body:    payload,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}

	var resp feedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode feed: %w: %w", harvest.ErrListingUnavailable, harvest.ErrParseFailure, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: feed returned error %q: %w", harvest.ErrListingUnavailable, resp.Errors[0].Message, harvest.ErrParseFailure)
	}

	type latest struct {
		at      time.Time
		content feedContent
	}
	byID := make(map[string]*latest)
	var order []string
	var undated int
	for _, activity := range resp.Data.Activities {
		at, ok := parseActivityTime(activity.Datetime)
		if !ok {
			undated++
			continue
		}
		for _, item := range activity.Content {
			if item.ID == "" {
				continue
			}
			cur, exists := byID[item.ID]
			if !exists {
				byID[item.ID] = &latest{at: at, content: item}
				order = append(order, item.ID)
				continue
			}
			if at.After(cur.at) {
				cur.at = at
				cur.content = item
			}
		}
	}

	candidates := make([]harvest.Candidate, 0, len(order))
	for _, id := range order {
		item := byID[id]
		if !after(item.at, cutoff) {
			continue
		}
		candidates = append(candidates, harvest.Candidate{
			SourceID:   f.src.ID,
			Locator:    strings.ReplaceAll(f.template, "{id}", id),
			ObservedAt: item.at,
			Inline: &harvest.InlineContent{
				Title: item.content.Title,
				Body:  item.content.Content,
			},
		})
	}

	f.logger.Debug("feed parsed",
		zap.Int("activities", len(resp.Data.Activities)),
		zap.Int("items", len(order)),
		zap.Int("candidates", len(candidates)),
		zap.Int("undated", undated),
		zap.Time("cutoff", cutoff),
	)
	return candidates, nil
}

func parseActivityTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
