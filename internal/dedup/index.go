// Package dedup maintains an in-memory duplicate index over recently
// ingested content: exact matches by content hash and near-duplicates by
// minhash signature similarity.
package dedup

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/extract"
)

// Kind classifies the outcome of a duplicate check.
type Kind string

const (
	Unique         Kind = "unique"
	ExactDuplicate Kind = "exact"
	NearDuplicate  Kind = "near"
)

// Decision is the result of observing one item. CanonicalID names the
// representative of the duplicate cluster; for unique items it is the item
// itself. SupersededID is set when the new item displaces a previously
// canonical entry, which the caller must then mark as a duplicate.
type Decision struct {
	Kind         Kind
	CanonicalID  string
	SupersededID string
	Similarity   float64
}

type entry struct {
	id          string
	contentHash string
	signature   []uint64
	publishedAt time.Time
	reputation  float64
}

// shard holds one slice of the index. Entries are evicted oldest-first once
// the shard exceeds its window size.
type shard struct {
	mu     sync.RWMutex
	byHash map[string]*entry
	order  []string
	window int
}

func (s *shard) lookup(hash string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byHash[hash]
	return e, ok
}

func (s *shard) insert(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[e.contentHash]; exists {
		return
	}
	s.byHash[e.contentHash] = e
	s.order = append(s.order, e.contentHash)
	for len(s.order) > s.window {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byHash, oldest)
	}
}

// Index is a sharded duplicate detector. Shards are selected by content
// hash prefix so exact lookups touch a single lock; near-duplicate scans
// read every shard's recent window.
type Index struct {
	shards    []*shard
	threshold float64
	logger    *zap.Logger
}

// Options configures an Index.
type Options struct {
	// Shards is the number of lock-striped segments, rounded up to at
	// least one.
	Shards int
	// WindowSize bounds the number of recent entries kept per shard.
	WindowSize int
	// Threshold is the minimum signature similarity treated as a
	// near-duplicate.
	Threshold float64
}

// NewIndex builds an empty duplicate index.
func NewIndex(opts Options, logger *zap.Logger) *Index {
	if opts.Shards < 1 {
		opts.Shards = 16
	}
	if opts.WindowSize < 1 {
		opts.WindowSize = 4096
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.8
	}
	shards := make([]*shard, opts.Shards)
	for i := range shards {
		shards[i] = &shard{
			byHash: make(map[string]*entry),
			window: opts.WindowSize,
		}
	}
	return &Index{shards: shards, threshold: opts.Threshold, logger: logger}
}

func (x *Index) shardFor(hash string) *shard {
	if hash == "" {
		return x.shards[0]
	}
	var h uint32
	for i := 0; i < len(hash) && i < 8; i++ {
		h = h*31 + uint32(hash[i])
	}
	return x.shards[h%uint32(len(x.shards))]
}

// Observe checks an item against the index and records it. Identical
// content hashes are exact duplicates. Otherwise the recent windows are
// scanned for the most similar signature; at or above the threshold the
// item joins that cluster, and the cluster representative is the entry with
// the earliest publication time, ties broken by higher source reputation.
func (x *Index) Observe(item content.ContentItem, reputation float64) Decision {
	s := x.shardFor(item.ContentHash)
	if existing, ok := s.lookup(item.ContentHash); ok {
		x.logger.Debug("exact duplicate",
			zap.String("item_id", item.ID),
			zap.String("canonical_id", existing.id),
		)
		return Decision{Kind: ExactDuplicate, CanonicalID: existing.id, Similarity: 1}
	}

	candidate := &entry{
		id:          item.ID,
		contentHash: item.ContentHash,
		signature:   item.Signature,
		publishedAt: item.PublishedAt,
		reputation:  reputation,
	}

	best, bestSim := x.nearest(candidate)
	s.insert(candidate)

	if best == nil || bestSim < x.threshold {
		return Decision{Kind: Unique, CanonicalID: item.ID}
	}

	decision := Decision{Kind: NearDuplicate, Similarity: bestSim}
	if represents(candidate, best) {
		decision.CanonicalID = candidate.id
		decision.SupersededID = best.id
	} else {
		decision.CanonicalID = best.id
	}
	x.logger.Debug("near duplicate",
		zap.String("item_id", item.ID),
		zap.String("canonical_id", decision.CanonicalID),
		zap.Float64("similarity", bestSim),
	)
	return decision
}

func (x *Index) nearest(candidate *entry) (*entry, float64) {
	var best *entry
	var bestSim float64
	for _, s := range x.shards {
		s.mu.RLock()
		for _, e := range s.byHash {
			sim := extract.Similarity(candidate.signature, e.signature)
			if sim > bestSim {
				best, bestSim = e, sim
			}
		}
		s.mu.RUnlock()
	}
	return best, bestSim
}

// represents reports whether a should be the cluster representative over b.
// Earlier publication wins; unknown publication times lose to known ones.
func represents(a, b *entry) bool {
	switch {
	case a.publishedAt.IsZero() && b.publishedAt.IsZero():
		return a.reputation > b.reputation
	case a.publishedAt.IsZero():
		return false
	case b.publishedAt.IsZero():
		return true
	case !a.publishedAt.Equal(b.publishedAt):
		return a.publishedAt.Before(b.publishedAt)
	default:
		return a.reputation > b.reputation
	}
}

// Len reports the number of entries currently indexed, for diagnostics.
func (x *Index) Len() int {
	total := 0
	for _, s := range x.shards {
		s.mu.RLock()
		total += len(s.byHash)
		s.mu.RUnlock()
	}
	return total
}
