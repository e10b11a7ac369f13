// Package extract turns HTML article pages into a title and normalized body text.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// DefaultTrailer is the newsletter call-to-action removed from the end of bodies.
const DefaultTrailer = "No posts Ready for more?"

// HTMLExtractor reads the <title> and joins every non-empty paragraph.
type HTMLExtractor struct {
	trailers []string
}

var _ harvest.Extractor = (*HTMLExtractor)(nil)

// New returns an extractor that strips the given trailing phrases. With no
// arguments it strips DefaultTrailer.
func New(trailers ...string) *HTMLExtractor {
	if len(trailers) == 0 {
		trailers = []string{DefaultTrailer}
	}
	return &HTMLExtractor{trailers: trailers}
}

// Extract parses body. Unparseable markup yields ErrParseFailure; a page with
// no paragraph text yields ErrEmptyContent.
func (e *HTMLExtractor) Extract(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w: %w", harvest.ErrParseFailure, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	paragraphs := make([]string, 0, doc.Find("p").Length())
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	text := e.Clean(strings.Join(paragraphs, " "))
	if text == "" {
		return title, "", fmt.Errorf("no paragraph text: %w", harvest.ErrEmptyContent)
	}
	return title, text, nil
}

// Clean collapses whitespace runs and strips configured trailers.
func (e *HTMLExtractor) Clean(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for _, trailer := range e.trailers {
		text = strings.TrimSpace(strings.TrimSuffix(text, trailer))
	}
	return text
}
