package scheduler

import "sync"

// Cancellations is the shared set of cancelled ingestion jobs. Cancelling
// a job stops new fetch tasks for that run: the scheduler stops enqueueing
// its remaining URLs and pipeline workers drop its queued tasks, while
// tasks already in flight drain normally.
type Cancellations struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewCancellations builds an empty set.
func NewCancellations() *Cancellations {
	return &Cancellations{ids: make(map[string]struct{})}
}

// Cancel marks the job cancelled.
func (c *Cancellations) Cancel(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[jobID] = struct{}{}
}

// Cancelled reports whether the job has been cancelled.
func (c *Cancellations) Cancelled(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[jobID]
	return ok
}
