// Package memory contains an in-memory notification channel for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// Channel stores delivered events for inspection. When Err is set every
// delivery fails with it, which simulates an unreachable endpoint.
type Channel struct {
	mu       sync.RWMutex
	events   []harvest.Event
	attempts int
	err      error
}

var _ harvest.Channel = (*Channel)(nil)

// New returns a memory Channel.
func New() *Channel {
	return &Channel{}
}

// Fail makes subsequent deliveries return err. Pass nil to recover.
func (c *Channel) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Deliver records the event unless a failure is configured.
func (c *Channel) Deliver(_ context.Context, evt harvest.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.err != nil {
		return fmt.Errorf("%w: %w", harvest.ErrNotifyFailure, c.err)
	}
	c.events = append(c.events, evt)
	return nil
}

// Events returns the delivered events.
func (c *Channel) Events() []harvest.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]harvest.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Attempts counts every Deliver call, failed or not.
func (c *Channel) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}
