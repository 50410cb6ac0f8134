// Package trending tracks term frequencies over tumbling windows, compares
// them against an exponentially weighted baseline, and emits discovery seed
// queries for terms bursting hard enough to warrant new crawling.
package trending

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/extract"
	"github.com/CornerLeague/Corner-League-Bot/internal/metrics"
)

// Options configures a Detector.
type Options struct {
	// Window is the tumbling window length.
	Window time.Duration
	// BaselineAlpha is the EMA smoothing factor applied at each rollover.
	BaselineAlpha float64
	// TrendingThreshold is the burst score at which a term is trending.
	TrendingThreshold float64
	// DiscoveryThreshold is the burst score at which a seed query is
	// emitted. It should not be below TrendingThreshold.
	DiscoveryThreshold float64
	// MinOccurrences is the minimum window count before a term can trend.
	MinOccurrences int
	// MaxTerms bounds the tracked vocabulary; the lowest-baseline terms
	// are dropped first when the table overflows.
	MaxTerms int
	// SeedCooldown suppresses repeat seeds for the same term.
	SeedCooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 2 * time.Hour
	}
	if o.BaselineAlpha <= 0 || o.BaselineAlpha > 1 {
		o.BaselineAlpha = 0.3
	}
	if o.TrendingThreshold <= 0 {
		o.TrendingThreshold = 3.0
	}
	if o.DiscoveryThreshold < o.TrendingThreshold {
		o.DiscoveryThreshold = 5.0
	}
	if o.MinOccurrences <= 0 {
		o.MinOccurrences = 3
	}
	if o.MaxTerms <= 0 {
		o.MaxTerms = 10000
	}
	if o.SeedCooldown <= 0 {
		o.SeedCooldown = 4 * o.Window
	}
	return o
}

type termStats struct {
	term         string
	count        int
	baseline     float64
	burst        float64
	state        content.TermState
	lastSeeded   time.Time
	everObserved bool
}

// Detector is the windowed burst detector. Observe feeds it terms as items
// are indexed; Rollover closes the current window, updates baselines and
// states, and returns the window's trending terms plus any seed queries it
// enqueued.
type Detector struct {
	opts   Options
	clock  content.Clock
	queue  content.DiscoveryQueue
	logger *zap.Logger

	mu          sync.Mutex
	terms       map[string]*termStats
	windowStart time.Time
}

// NewDetector builds a Detector. The queue may be nil when seed feedback is
// disabled.
func NewDetector(opts Options, clock content.Clock, queue content.DiscoveryQueue, logger *zap.Logger) *Detector {
	return &Detector{
		opts:        opts.withDefaults(),
		clock:       clock,
		queue:       queue,
		logger:      logger,
		terms:       make(map[string]*termStats),
		windowStart: clock.Now(),
	}
}

// Window reports the configured window length.
func (d *Detector) Window() time.Duration { return d.opts.Window }

// Observe counts the item's terms in the current window. Terms come from
// the title and the item's sport keywords.
func (d *Detector) Observe(item content.ContentItem) {
	terms := Terms(item)
	if len(terms) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, term := range terms {
		stats, ok := d.terms[term]
		if !ok {
			if len(d.terms) >= d.opts.MaxTerms {
				d.evictLocked()
			}
			stats = &termStats{term: term, state: content.TermBaseline}
			d.terms[term] = stats
		}
		stats.count++
		stats.everObserved = true
	}
}

// evictLocked drops the coldest untrending term to make room.
func (d *Detector) evictLocked() {
	var victim string
	lowest := -1.0
	for term, stats := range d.terms {
		if stats.state == content.TermTrending || stats.count > 0 {
			continue
		}
		if lowest < 0 || stats.baseline < lowest {
			victim, lowest = term, stats.baseline
		}
	}
	if victim != "" {
		delete(d.terms, victim)
	}
}

// Rollover closes the current window. Burst scores compare the window count
// to the EMA baseline; states advance through baseline, rising, trending,
// and decaying; terms bursting past the discovery threshold are enqueued as
// seed queries. Returns the window's terms ordered by burst score.
func (d *Detector) Rollover(ctx context.Context) []content.TrendingTerm {
	now := d.clock.Now()

	d.mu.Lock()
	windowStart := d.windowStart
	d.windowStart = now

	var out []content.TrendingTerm
	var seeds []content.SeedQuery
	for term, stats := range d.terms {
		count := stats.count
		stats.count = 0

		burst := burstScore(float64(count), stats.baseline)
		stats.burst = burst
		stats.state = nextState(stats.state, burst, count, d.opts)
		stats.baseline = d.opts.BaselineAlpha*float64(count) + (1-d.opts.BaselineAlpha)*stats.baseline

		if stats.baseline < 0.01 && count == 0 && stats.state == content.TermBaseline {
			delete(d.terms, term)
			continue
		}

		if count > 0 {
			out = append(out, content.TrendingTerm{
				Term:         term,
				Normalized:   term,
				WindowCount:  count,
				BaselineRate: stats.baseline,
				BurstScore:   burst,
				State:        stats.state,
				IsTrending:   stats.state == content.TermTrending,
				WindowStart:  windowStart,
				WindowEnd:    now,
			})
		}

		if burst >= d.opts.DiscoveryThreshold && count >= d.opts.MinOccurrences &&
			now.Sub(stats.lastSeeded) >= d.opts.SeedCooldown {
			stats.lastSeeded = now
			seeds = append(seeds, content.SeedQuery{
				Query:       term,
				Term:        term,
				BurstScore:  burst,
				Priority:    burst,
				GeneratedAt: now,
			})
		}
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BurstScore != out[j].BurstScore {
			return out[i].BurstScore > out[j].BurstScore
		}
		return out[i].Term < out[j].Term
	})

	for _, seed := range seeds {
		if d.queue == nil {
			break
		}
		if err := d.queue.Enqueue(ctx, seed); err != nil {
			d.logger.Warn("seed enqueue failed",
				zap.String("term", seed.Term),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveSeedQuery()
		d.logger.Info("emitted discovery seed",
			zap.String("term", seed.Term),
			zap.Float64("burst_score", seed.BurstScore),
		)
	}

	metrics.ObserveTrendingWindow()
	return out
}

// Top returns the current trending terms, highest burst first, capped at k.
// It reflects the last completed window.
func (d *Detector) Top(k int) []content.TrendingTerm {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []content.TrendingTerm
	for term, stats := range d.terms {
		if stats.state != content.TermTrending && stats.state != content.TermRising {
			continue
		}
		out = append(out, content.TrendingTerm{
			Term:         term,
			Normalized:   term,
			BaselineRate: stats.baseline,
			BurstScore:   stats.burst,
			State:        stats.state,
			IsTrending:   stats.state == content.TermTrending,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BurstScore != out[j].BurstScore {
			return out[i].BurstScore > out[j].BurstScore
		}
		return out[i].Term < out[j].Term
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// burstScore is the ratio of the window count to the baseline. A brand new
// term has no baseline; its burst equals its count so sudden arrivals can
// trend immediately.
func burstScore(count, baseline float64) float64 {
	if count == 0 {
		return 0
	}
	if baseline < 1 {
		baseline = 1
	}
	return count / baseline
}

// nextState advances the term lifecycle. Rising requires half the trending
// burst; trending additionally requires the minimum occurrence count.
// Trending terms that stop bursting decay before settling back to baseline.
func nextState(current content.TermState, burst float64, count int, opts Options) content.TermState {
	switch {
	case burst >= opts.TrendingThreshold && count >= opts.MinOccurrences:
		return content.TermTrending
	case burst >= opts.TrendingThreshold/2 && count > 0:
		if current == content.TermTrending {
			return content.TermDecaying
		}
		return content.TermRising
	default:
		if current == content.TermTrending {
			return content.TermDecaying
		}
		return content.TermBaseline
	}
}

// Terms extracts the trackable terms of an item: normalized title unigrams,
// title bigrams, and the item's sport keywords.
func Terms(item content.ContentItem) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(term string) {
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	words := strings.Fields(extract.NormalizeText(item.Title))
	for _, w := range words {
		add(w)
	}
	for i := 0; i+1 < len(words); i++ {
		add(words[i] + " " + words[i+1])
	}
	for _, kw := range item.SportsKeywords {
		add(strings.ToLower(kw))
	}
	return out
}
