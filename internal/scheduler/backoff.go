package scheduler

import (
	"math/rand"
	"time"
)

// Backoff computes jittered exponential delays for retrying transient
// fetch failures. Attempt numbering starts at one.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the pause before the given retry attempt. Each attempt
// doubles the previous delay, capped at Max, with up to 25% random jitter
// so retries against one host spread out.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Minute
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > max {
		delay = max
	}
	return delay
}

// RetryAfter honors a server-provided retry hint, clamped to Max.
func (b Backoff) RetryAfter(hint time.Duration, attempt int) time.Duration {
	if hint <= 0 {
		return b.Delay(attempt)
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Minute
	}
	if hint > max {
		return max
	}
	return hint
}
