package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// CheckpointStore keeps checkpoints in-process. Values are lost on exit, so
// every process start behaves like a first run.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]time.Time
}

var _ harvest.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore constructs a CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]time.Time)}
}

// Get returns the checkpoint for sourceID, if any.
func (s *CheckpointStore) Get(_ context.Context, sourceID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.checkpoints[sourceID]
	return at, ok, nil
}

// Set records the checkpoint for sourceID.
func (s *CheckpointStore) Set(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[sourceID] = at
	return nil
}
