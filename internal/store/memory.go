package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// MemorySourceStore is an in-memory source registry for single-node runs
// and tests.
type MemorySourceStore struct {
	mu      sync.RWMutex
	sources map[string]content.Source
}

// NewMemorySourceStore builds a registry seeded with the given sources.
func NewMemorySourceStore(sources ...content.Source) *MemorySourceStore {
	s := &MemorySourceStore{sources: make(map[string]content.Source, len(sources))}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	return s
}

// Add registers or replaces a source.
func (s *MemorySourceStore) Add(src content.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
}

// ListDue returns active sources whose next crawl time has passed, premium
// tiers first.
func (s *MemorySourceStore) ListDue(ctx context.Context, now time.Time, limit int) ([]content.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []content.Source
	for _, src := range s.sources {
		if !src.Active {
			continue
		}
		if !src.LastCrawled.IsZero() && src.LastCrawled.Add(src.CrawlFrequency).After(now) {
			continue
		}
		due = append(due, src)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].QualityTier != due[j].QualityTier {
			return due[i].QualityTier < due[j].QualityTier
		}
		return due[i].LastCrawled.Before(due[j].LastCrawled)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Get returns a source by id.
func (s *MemorySourceStore) Get(ctx context.Context, id string) (content.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return content.Source{}, fmt.Errorf("source %s not found", id)
	}
	return src, nil
}

// UpdateTelemetry writes back the scheduler's health feedback.
func (s *MemorySourceStore) UpdateTelemetry(ctx context.Context, id string, t content.SourceTelemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s not found", id)
	}
	src.SuccessRate = t.SuccessRate
	src.AvgResponseTime = t.AvgResponseTime
	src.LastCrawled = t.LastCrawled
	src.Degraded = t.Degraded
	s.sources[id] = src
	return nil
}

// MemoryContentStore is an in-memory content item store.
type MemoryContentStore struct {
	mu          sync.RWMutex
	items       map[string]content.ContentItem
	byHash      map[string]string
	byCanonical map[string]string
}

// NewMemoryContentStore builds an empty content store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		items:       make(map[string]content.ContentItem),
		byHash:      make(map[string]string),
		byCanonical: make(map[string]string),
	}
}

// Upsert stores the item keyed by id.
func (s *MemoryContentStore) Upsert(ctx context.Context, item content.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.items[item.ID]; ok {
		delete(s.byHash, prev.ContentHash)
		delete(s.byCanonical, prev.CanonicalURL)
	}
	s.items[item.ID] = item
	s.byHash[item.ContentHash] = item.ID
	s.byCanonical[item.CanonicalURL] = item.ID
	return nil
}

// Get returns the item with the given id, if any.
func (s *MemoryContentStore) Get(ctx context.Context, id string) (content.ContentItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return content.ContentItem{}, false, nil
	}
	return item, true, nil
}

// GetByHash returns the item with the given content hash, if any.
func (s *MemoryContentStore) GetByHash(ctx context.Context, hash string) (content.ContentItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return content.ContentItem{}, false, nil
	}
	return s.items[id], true, nil
}

// GetByCanonicalURL returns the item with the given canonical URL, if any.
func (s *MemoryContentStore) GetByCanonicalURL(ctx context.Context, url string) (content.ContentItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCanonical[url]
	if !ok {
		return content.ContentItem{}, false, nil
	}
	return s.items[id], true, nil
}

// RecentExtracted lists successfully extracted items created since the
// given time, newest first.
func (s *MemoryContentStore) RecentExtracted(ctx context.Context, since time.Time, limit int) ([]content.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []content.ContentItem
	for _, item := range s.items {
		if item.ExtractionStatus != content.ExtractionExtracted {
			continue
		}
		if item.CreatedAt.Before(since) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Len returns the number of stored items.
func (s *MemoryContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// MemoryJobStore is an in-memory ingestion job store.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]content.IngestionJob
}

// NewMemoryJobStore builds an empty job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]content.IngestionJob)}
}

// Create inserts the job record.
func (s *MemoryJobStore) Create(ctx context.Context, job content.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// Update rewrites the job record.
func (s *MemoryJobStore) Update(ctx context.Context, job content.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// Get returns a job by id.
func (s *MemoryJobStore) Get(ctx context.Context, id string) (content.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return content.IngestionJob{}, fmt.Errorf("job %s not found", id)
	}
	return job, nil
}
