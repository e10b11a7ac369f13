package harvest

import (
	"net/http"
	"time"
)

// SourceKind selects the discovery mechanism used for a source.
type SourceKind string

// Supported source kinds.
const (
	KindListing SourceKind = "listing"
	KindSitemap SourceKind = "sitemap"
	KindFeed    SourceKind = "feed"
)

// Valid reports whether k names a supported source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case KindListing, KindSitemap, KindFeed:
		return true
	default:
		return false
	}
}

// Source describes one configured origin of documents.
type Source struct {
	// ID is the checkpoint key, normally the canonical endpoint URL.
	ID       string
	Kind     SourceKind
	Endpoint string
	// Name is the human label written into Document.Source.
	Name string
	// BaseURL resolves relative locators found on listing pages.
	BaseURL string
	// Query overrides the activity-feed query document.
	Query string
	// URLTemplate renders feed item ids into document URLs; "{id}" is replaced.
	URLTemplate string
}

// Label returns the display name, falling back to the ID.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// InlineContent carries document text that arrived with the listing itself,
// as activity feeds do, so no second fetch is needed.
type InlineContent struct {
	Title string
	Body  string
}

// Candidate is a discovered locator that has not been fetched yet.
type Candidate struct {
	SourceID   string
	Locator    string
	ObservedAt time.Time
	Inline     *InlineContent
}

// Document is one successfully extracted item.
type Document struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Body   string `json:"content"`
}

// ErrorRecord ties a locator to the kind of failure it hit.
type ErrorRecord struct {
	Locator string    `json:"locator"`
	Kind    ErrorKind `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
}

// RunResult is the deduplicated output of one harvesting pass.
type RunResult struct {
	Documents []Document    `json:"documents"`
	Skipped   int           `json:"skipped"`
	Errors    []ErrorRecord `json:"errors"`
}

// FetchRequest captures everything needed for one retrieval.
type FetchRequest struct {
	Locator string
	Method  string
	Body    []byte
	Headers http.Header
}

// FetchResponse is the body and metadata returned by a retrieval.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// Severity classifies a notification event.
type Severity string

// Notification severities.
const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Color maps the severity onto the embed color used by chat webhooks.
// Unknown severities render as errors.
func (s Severity) Color() int {
	switch s {
	case SeveritySuccess:
		return 0x00FF00
	case SeverityWarning:
		return 0xFFA500
	case SeverityInfo:
		return 0xFFFF00
	default:
		return 0xFF0000
	}
}

// Event is a structured notification.
type Event struct {
	Title       string
	Description string
	Severity    Severity
	At          time.Time
}
