package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Telemetry folds fetch outcomes into per-source health via exponential
// moving averages and flags sources degraded after a run of consecutive
// transient failures. Degraded sources crawl at a stretched interval until
// a success clears the flag.
type Telemetry struct {
	store         content.SourceStore
	alpha         float64
	degradeAfter  int
	intervalScale int
	clock         content.Clock
	logger        *zap.Logger

	mu       sync.Mutex
	failures map[string]int // consecutive transient failures per source
}

// NewTelemetry builds the telemetry tracker.
func NewTelemetry(store content.SourceStore, alpha float64, degradeAfter, intervalScale int, clock content.Clock, logger *zap.Logger) *Telemetry {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	if degradeAfter < 1 {
		degradeAfter = 3
	}
	if intervalScale < 1 {
		intervalScale = 4
	}
	return &Telemetry{
		store:         store,
		alpha:         alpha,
		degradeAfter:  degradeAfter,
		intervalScale: intervalScale,
		clock:         clock,
		logger:        logger,
		failures:      make(map[string]int),
	}
}

// RecordSuccess folds a successful fetch into the source's telemetry and
// clears any degradation.
func (t *Telemetry) RecordSuccess(ctx context.Context, source content.Source, duration time.Duration) content.Source {
	t.mu.Lock()
	delete(t.failures, source.ID)
	t.mu.Unlock()

	source.SuccessRate = t.ema(source.SuccessRate, 1)
	source.AvgResponseTime = time.Duration(t.ema(float64(source.AvgResponseTime), float64(duration)))
	source.LastCrawled = t.clock.Now()
	source.Degraded = false

	t.persist(ctx, source)
	return source
}

// RecordFailure folds a failed fetch into the source's telemetry. Transient
// failures accumulate toward degradation; permanent ones reset the streak
// since they say nothing about source health.
func (t *Telemetry) RecordFailure(ctx context.Context, source content.Source, transient bool) content.Source {
	t.mu.Lock()
	if transient {
		t.failures[source.ID]++
	} else {
		delete(t.failures, source.ID)
	}
	streak := t.failures[source.ID]
	t.mu.Unlock()

	source.SuccessRate = t.ema(source.SuccessRate, 0)
	source.LastCrawled = t.clock.Now()
	if streak >= t.degradeAfter && !source.Degraded {
		source.Degraded = true
		t.logger.Warn("source degraded",
			zap.String("source_id", source.ID),
			zap.String("domain", source.Domain),
			zap.Int("consecutive_failures", streak),
		)
	}

	t.persist(ctx, source)
	return source
}

// Interval returns the source's effective crawl interval: the configured
// frequency, stretched while the source is degraded.
func (t *Telemetry) Interval(source content.Source) time.Duration {
	interval := source.CrawlFrequency
	if interval <= 0 {
		interval = time.Hour
	}
	if source.Degraded {
		interval *= time.Duration(t.intervalScale)
	}
	return interval
}

func (t *Telemetry) ema(prev, sample float64) float64 {
	if prev == 0 {
		return sample
	}
	return t.alpha*sample + (1-t.alpha)*prev
}

func (t *Telemetry) persist(ctx context.Context, source content.Source) {
	err := t.store.UpdateTelemetry(ctx, source.ID, content.SourceTelemetry{
		SuccessRate:     source.SuccessRate,
		AvgResponseTime: source.AvgResponseTime,
		LastCrawled:     source.LastCrawled,
		Degraded:        source.Degraded,
	})
	if err != nil {
		t.logger.Error("telemetry update failed",
			zap.String("source_id", source.ID),
			zap.Error(err),
		)
	}
}
