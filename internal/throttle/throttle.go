// Package throttle caps the number of operations in flight process-wide.
package throttle

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the number of concurrent operations allowed when no limit
// is configured.
const DefaultLimit = 256

// Throttle admits at most a fixed number of operations at a time. Waiters
// are admitted in FIFO order; Acquire respects context cancellation while
// queued.
type Throttle struct {
	sem *semaphore.Weighted
}

// New creates a Throttle admitting at most limit concurrent operations.
// A non-positive limit selects DefaultLimit.
func New(limit int64) *Throttle {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Throttle{sem: semaphore.NewWeighted(limit)}
}

// Acquire blocks until a slot is free or ctx is done.
func (t *Throttle) Acquire(ctx context.Context) error {
	return t.sem.Acquire(ctx, 1)
}

// Release frees a slot obtained with Acquire.
func (t *Throttle) Release() {
	t.sem.Release(1)
}
