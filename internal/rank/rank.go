// Package rank indexes scored content and serves ranked search queries.
// Ranking blends lexical relevance, quality, freshness, and optional
// personalization; backends share the same query contract so deployments
// can run on the in-process index, Postgres full-text search, or
// Elasticsearch.
package rank

import (
	"context"
	"math"
	"time"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Query describes one ranked search request.
type Query struct {
	// Text is the free-text query. Empty text ranks purely on quality
	// and freshness.
	Text string
	// Sports restricts results to items tagged with any of these sport
	// keywords.
	Sports []string
	// Sources restricts results to these source domains.
	Sources []string
	// ContentTypes restricts results to these content type buckets.
	ContentTypes []string
	// SortBy selects the result order, SortRelevance when empty.
	SortBy string
	// IncludeSpam lifts the default spam exclusion. Duplicates and
	// inactive items are always excluded.
	IncludeSpam bool
	// Limit caps the page size. Backends clamp it to their maximum.
	Limit int
	// Cursor resumes a previous page.
	Cursor string
	// Profile applies personalization boosts when present.
	Profile *Profile
	// Now anchors freshness decay, set by the engine.
	Now time.Time
}

// Sort orders accepted by Query.SortBy.
const (
	// SortRelevance orders by the blended ranking score.
	SortRelevance = "relevance"
	// SortRecent orders by publication time, newest first.
	SortRecent = "recent"
)

// ValidSort reports whether s names a supported sort order.
func ValidSort(s string) bool {
	return s == "" || s == SortRelevance || s == SortRecent
}

// Profile carries per-user preference weights in [0, 1].
type Profile struct {
	Sports  map[string]float64
	Sources map[string]float64
}

// Hit is one ranked result.
type Hit struct {
	Item      content.ContentItem
	Score     float64
	TextScore float64
}

// Result is one page of ranked hits.
type Result struct {
	Hits       []Hit
	NextCursor string
	Total      int
	Backend    string
	FromCache  bool
}

// Backend indexes items and serves ranked queries.
type Backend interface {
	Name() string
	Index(ctx context.Context, item content.ContentItem) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, q Query) (Result, error)
}

// Params holds the ranking constants shared by every backend.
type Params struct {
	BM25K1            float64
	BM25B             float64
	TitleBoost        float64
	QualityWeight     float64
	FreshnessWeight   float64
	FreshnessHalfLife time.Duration
	PersonalBoost     float64
	MaxLimit          int
}

// DefaultParams returns the production ranking constants.
func DefaultParams() Params {
	return Params{
		BM25K1:            1.2,
		BM25B:             0.75,
		TitleBoost:        3.0,
		QualityWeight:     0.3,
		FreshnessWeight:   0.3,
		FreshnessHalfLife: 24 * time.Hour,
		PersonalBoost:     0.2,
		MaxLimit:          100,
	}
}

func (p Params) clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		return p.MaxLimit
	}
	return limit
}

// freshness decays by half every half-life interval, anchored at now.
func (p Params) freshness(published, now time.Time) float64 {
	if published.IsZero() || p.FreshnessHalfLife <= 0 {
		return 0
	}
	age := now.Sub(published)
	if age < 0 {
		age = 0
	}
	halfLives := float64(age) / float64(p.FreshnessHalfLife)
	return math.Exp2(-halfLives)
}

// personal returns the personalization boost for an item under a profile.
func (p Params) personal(item content.ContentItem, profile *Profile) float64 {
	if profile == nil {
		return 0
	}
	best := 0.0
	for _, kw := range item.SportsKeywords {
		if w, ok := profile.Sports[kw]; ok && w > best {
			best = w
		}
	}
	if w, ok := profile.Sources[item.SourceDomain]; ok && w > best {
		best = w
	}
	return p.PersonalBoost * best
}

// combine folds the ranking signals into the final score. The text score is
// squashed into [0, 1) so the blend stays comparable across query lengths.
func (p Params) combine(textScore float64, item content.ContentItem, profile *Profile, now time.Time) float64 {
	relevance := textScore / (textScore + 1)
	return relevance +
		p.QualityWeight*item.QualityScore +
		p.FreshnessWeight*p.freshness(item.PublishedAt, now) +
		p.personal(item, profile)
}

