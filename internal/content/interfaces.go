package content

import (
	"context"
	"time"
)

// SourceStore persists sources and their crawl telemetry.
type SourceStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]Source, error)
	Get(ctx context.Context, id string) (Source, error)
	UpdateTelemetry(ctx context.Context, id string, t SourceTelemetry) error
}

// SourceTelemetry carries the mutable per-source state written back by the
// scheduler on every task resolution.
type SourceTelemetry struct {
	SuccessRate     float64
	AvgResponseTime time.Duration
	LastCrawled     time.Time
	Degraded        bool
}

// ContentStore persists content items.
type ContentStore interface {
	Upsert(ctx context.Context, item ContentItem) error
	Get(ctx context.Context, id string) (ContentItem, bool, error)
	GetByHash(ctx context.Context, hash string) (ContentItem, bool, error)
	GetByCanonicalURL(ctx context.Context, url string) (ContentItem, bool, error)
	RecentExtracted(ctx context.Context, since time.Time, limit int) ([]ContentItem, error)
}

// JobStore persists ingestion jobs.
type JobStore interface {
	Create(ctx context.Context, job IngestionJob) error
	Update(ctx context.Context, job IngestionJob) error
	Get(ctx context.Context, id string) (IngestionJob, error)
}

// BlobStore archives raw fetched documents and returns a URI.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// DiscoveryQueue carries seed queries from the trending detector back to the
// fetch scheduler. Implementations are bounded; Enqueue blocks under
// backpressure until the context ends.
type DiscoveryQueue interface {
	Enqueue(ctx context.Context, seed SeedQuery) error
	Dequeue(ctx context.Context) (SeedQuery, error)
}

// Summarizer calls the external summarization service. Failures must never
// block indexing.
type Summarizer interface {
	Summarize(ctx context.Context, item ContentItem) (Summary, error)
}

// Fetcher fetches a single URL under the caller's politeness constraints.
type Fetcher interface {
	Fetch(ctx context.Context, source Source, url string) (RawDocument, error)
}

// Clock returns the current time (swap out in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs.
type IDGenerator interface {
	NewID() string
}
