// Package queue carries discovery seed queries from the trending detector
// to the fetch scheduler. The memory queue is a bounded in-process channel;
// the Pub/Sub queue spans processes.
package queue

import (
	"context"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Memory is a bounded in-process seed queue.
type Memory struct {
	ch chan content.SeedQuery
}

// NewMemory builds a queue with the given depth.
func NewMemory(depth int) *Memory {
	if depth < 1 {
		depth = 64
	}
	return &Memory{ch: make(chan content.SeedQuery, depth)}
}

// Enqueue blocks under backpressure until the context ends.
func (m *Memory) Enqueue(ctx context.Context, seed content.SeedQuery) error {
	select {
	case m.ch <- seed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a seed arrives or the context ends.
func (m *Memory) Dequeue(ctx context.Context) (content.SeedQuery, error) {
	select {
	case seed := <-m.ch:
		return seed, nil
	case <-ctx.Done():
		return content.SeedQuery{}, ctx.Err()
	}
}

// Len reports the number of queued seeds.
func (m *Memory) Len() int { return len(m.ch) }
