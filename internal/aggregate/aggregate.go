// Package aggregate merges per-candidate outcomes into a deduplicated RunResult.
package aggregate

import (
	"sync"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// Aggregator keeps documents in insertion order keyed by URL. The first
// document seen for a URL wins; later duplicates are dropped silently.
type Aggregator struct {
	mu        sync.Mutex
	index     map[string]struct{}
	documents []harvest.Document
	skipped   int
	errors    []harvest.ErrorRecord
	finalized bool
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{index: make(map[string]struct{})}
}

// Add inserts doc unless its URL is already present. It reports whether the
// document was kept.
func (a *Aggregator) Add(doc harvest.Document) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return false
	}
	if _, dup := a.index[doc.URL]; dup {
		return false
	}
	a.index[doc.URL] = struct{}{}
	a.documents = append(a.documents, doc)
	return true
}

// Skip counts a benign empty-content candidate.
func (a *Aggregator) Skip() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finalized {
		a.skipped++
	}
}

// Fail records a candidate or source failure.
func (a *Aggregator) Fail(rec harvest.ErrorRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finalized {
		a.errors = append(a.errors, rec)
	}
}

// Len returns the number of documents kept so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.documents)
}

// Finalize snapshots the result. Further mutations are ignored so the
// returned value never changes underneath the caller.
func (a *Aggregator) Finalize() harvest.RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	result := harvest.RunResult{
		Documents: make([]harvest.Document, len(a.documents)),
		Skipped:   a.skipped,
		Errors:    make([]harvest.ErrorRecord, len(a.errors)),
	}
	copy(result.Documents, a.documents)
	copy(result.Errors, a.errors)
	return result
}
