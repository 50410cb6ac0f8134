// Package content defines the core types shared across the ingestion and
// ranking pipeline.
package content

import (
	"net/http"
	"time"
)

// Quality tiers assigned to sources by the registry.
const (
	TierPremium   = 1
	TierQuality   = 2
	TierDiscovery = 3
)

// Source is a crawlable content origin. Policy fields (frequency, robots,
// feeds, tier, reputation) are owned by the source registry; telemetry
// fields (SuccessRate, AvgResponseTime, LastCrawled) are mutated only by
// the fetch scheduler's outcome feedback.
type Source struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Domain         string        `json:"domain"`
	BaseURL        string        `json:"base_url"`
	RobotsTxtURL   string        `json:"robots_txt_url,omitempty"`
	SitemapURL     string        `json:"sitemap_url,omitempty"`
	RSSURL         string        `json:"rss_url,omitempty"`
	CrawlFrequency time.Duration `json:"crawl_frequency"`
	QualityTier    int           `json:"quality_tier"`
	Reputation     float64       `json:"reputation_score"`
	SportsFocus    []string      `json:"sports_focus,omitempty"`
	Active         bool          `json:"is_active"`

	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastCrawled     time.Time     `json:"last_crawled"`
	Degraded        bool          `json:"degraded"`
}

// ExtractionStatus tracks where an item sits in the extraction lifecycle.
type ExtractionStatus string

// Extraction status values persisted on content items.
const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionExtracted ExtractionStatus = "extracted"
	ExtractionFailed    ExtractionStatus = "failed"
)

// ContentItem is the canonical record produced by the extractor and carried
// through scoring and indexing. CanonicalURL is globally unique; ContentHash
// is unique among items with IsDuplicate=false.
type ContentItem struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	SourceDomain string `json:"source_domain"`

	OriginalURL  string   `json:"original_url"`
	CanonicalURL string   `json:"canonical_url"`
	ContentHash  string   `json:"content_hash"`
	Signature    []uint64 `json:"-"`

	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Byline      string    `json:"byline,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Language    string    `json:"language,omitempty"`
	WordCount   int       `json:"word_count"`

	SportsKeywords []string `json:"sports_keywords,omitempty"`
	ContentType    string   `json:"content_type,omitempty"`

	Summary           string  `json:"summary,omitempty"`
	SummaryConfidence float64 `json:"summary_confidence,omitempty"`

	QualityScore   float64 `json:"quality_score"`
	RelevanceScore float64 `json:"relevance_score"`
	Confidence     float64 `json:"extraction_confidence"`
	NeedsRescore   bool    `json:"needs_rescore,omitempty"`

	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	RetryCount       int              `json:"retry_count"`
	LastError        string           `json:"last_error,omitempty"`

	IsDuplicate bool   `json:"is_duplicate"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
	IsSpam      bool   `json:"is_spam"`
	IsActive    bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// IngestionJob tracks one crawl run for a source. Counters are updated
// atomically by workers as tasks resolve.
type IngestionJob struct {
	ID       string    `json:"id"`
	SourceID string    `json:"source_id"`
	Status   JobStatus `json:"status"`

	ItemsDiscovered int64 `json:"items_discovered"`
	ItemsProcessed  int64 `json:"items_processed"`
	ItemsSuccessful int64 `json:"items_successful"`
	ItemsFailed     int64 `json:"items_failed"`

	StartedAt    time.Time `json:"started_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// TermState is the trending lifecycle state of a term. Transitions are
// driven solely by consecutive-window burst comparisons.
type TermState string

// Term states.
const (
	TermBaseline TermState = "baseline"
	TermRising   TermState = "rising"
	TermTrending TermState = "trending"
	TermDecaying TermState = "decaying"
)

// TrendingTerm is the per-window record produced by the trending detector.
// Terms are ephemeral: each window supersedes the last.
type TrendingTerm struct {
	Term         string    `json:"term"`
	Normalized   string    `json:"normalized_term"`
	WindowCount  int       `json:"window_count"`
	BaselineRate float64   `json:"baseline_rate"`
	BurstScore   float64   `json:"burst_score"`
	State        TermState `json:"state"`
	IsTrending   bool      `json:"is_trending"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// RawDocument is a fetched document before extraction.
type RawDocument struct {
	SourceID    string        `json:"source_id"`
	JobID       string        `json:"job_id"`
	URL         string        `json:"url"`
	FinalURL    string        `json:"final_url"`
	StatusCode  int           `json:"status_code"`
	ContentType string        `json:"content_type"`
	Headers     http.Header   `json:"-"`
	Body        []byte        `json:"-"`
	FetchedAt   time.Time     `json:"fetched_at"`
	Duration    time.Duration `json:"duration"`
	ArchiveURI  string        `json:"archive_uri,omitempty"`
}

// SeedQuery is a discovery query emitted by the trending detector and
// consumed by the fetch scheduler, closing the feedback loop.
type SeedQuery struct {
	Query       string    `json:"query"`
	Term        string    `json:"term"`
	BurstScore  float64   `json:"burst_score"`
	Priority    float64   `json:"priority"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summary is the response from the external summarization service.
type Summary struct {
	Text             string   `json:"summary"`
	Confidence       float64  `json:"confidence_score"`
	KeyEntities      []string `json:"key_entities"`
	GenerationTimeMS int64    `json:"generation_time_ms"`
}
