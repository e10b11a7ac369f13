// Package dispatcher runs independent tasks on a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/delta-harvester/internal/metrics"
)

// DefaultWorkers is used when a non-positive pool size is configured.
const DefaultWorkers = 4

// Dispatcher fans tasks out to at most Workers goroutines.
type Dispatcher struct {
	workers int
}

// New creates a Dispatcher.
func New(workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{workers: workers}
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Each calls task for every index in [0, n) and blocks until all started
// tasks return. Tasks observe ctx; once ctx is done no new task starts and
// Each returns the context error. Tasks report their own outcomes, so a
// task can never abort its siblings.
func (d *Dispatcher) Each(ctx context.Context, n int, task func(ctx context.Context, i int)) error {
	var g errgroup.Group
	g.SetLimit(d.workers)

	for i := range n {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			task(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dispatch interrupted: %w", err)
	}
	return nil
}
