package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// ErrNoRuns is returned before any run has been recorded.
var ErrNoRuns = errors.New("no runs recorded")

// RunStore keeps the most recent run reports for the ops API.
type RunStore struct {
	mu      sync.RWMutex
	reports []harvest.RunReport
	limit   int
}

// NewRunStore keeps up to limit reports; non-positive limits keep 20.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = 20
	}
	return &RunStore{limit: limit}
}

// Record appends a finished report, evicting the oldest beyond the limit.
func (s *RunStore) Record(_ context.Context, report harvest.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	if over := len(s.reports) - s.limit; over > 0 {
		s.reports = append([]harvest.RunReport(nil), s.reports[over:]...)
	}
	return nil
}

// Latest returns the most recent report.
func (s *RunStore) Latest(_ context.Context) (harvest.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return harvest.RunReport{}, ErrNoRuns
	}
	return s.reports[len(s.reports)-1], nil
}

// List returns reports newest first.
func (s *RunStore) List(_ context.Context) ([]harvest.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.RunReport, 0, len(s.reports))
	for i := len(s.reports) - 1; i >= 0; i-- {
		out = append(out, s.reports[i])
	}
	return out, nil
}
