// Package store persists sources, content items, and ingestion jobs. The
// Postgres stores are the production implementations; the memory stores
// back tests and single-node runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DB is the slice of pgxpool.Pool the stores use; pgxmock satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SourceStore persists the source registry in Postgres.
type SourceStore struct {
	db DB
}

// NewSourceStore builds a SourceStore.
func NewSourceStore(db DB) *SourceStore { return &SourceStore{db: db} }

var sourceColumns = []string{
	"id", "name", "domain", "base_url", "robots_txt_url", "sitemap_url",
	"rss_url", "crawl_frequency_seconds", "quality_tier", "reputation_score",
	"sports_focus", "is_active", "success_rate", "avg_response_time_ms",
	"last_crawled", "degraded",
}

func scanSource(row pgx.Row) (content.Source, error) {
	var s content.Source
	var freqSeconds int64
	var avgMs int64
	var lastCrawled *time.Time
	err := row.Scan(
		&s.ID, &s.Name, &s.Domain, &s.BaseURL, &s.RobotsTxtURL, &s.SitemapURL,
		&s.RSSURL, &freqSeconds, &s.QualityTier, &s.Reputation,
		&s.SportsFocus, &s.Active, &s.SuccessRate, &avgMs,
		&lastCrawled, &s.Degraded,
	)
	if err != nil {
		return content.Source{}, err
	}
	s.CrawlFrequency = time.Duration(freqSeconds) * time.Second
	s.AvgResponseTime = time.Duration(avgMs) * time.Millisecond
	if lastCrawled != nil {
		s.LastCrawled = *lastCrawled
	}
	return s, nil
}

// ListDue returns active sources whose next crawl time has passed, ordered
// by tier so premium sources go first.
func (s *SourceStore) ListDue(ctx context.Context, now time.Time, limit int) ([]content.Source, error) {
	builder := psql.Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"is_active": true}).
		Where(sq.Expr(
			"(last_crawled IS NULL OR last_crawled + crawl_frequency_seconds * interval '1 second' <= ?)",
			now,
		)).
		OrderBy("quality_tier ASC", "last_crawled ASC NULLS FIRST")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list due query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due sources: %w", err)
	}
	defer rows.Close()

	var sources []content.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due sources rows: %w", err)
	}
	return sources, nil
}

// Get returns a single source by id.
func (s *SourceStore) Get(ctx context.Context, id string) (content.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return content.Source{}, fmt.Errorf("build get source query: %w", err)
	}
	src, err := scanSource(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return content.Source{}, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

// UpdateTelemetry writes back the scheduler's health feedback.
func (s *SourceStore) UpdateTelemetry(ctx context.Context, id string, t content.SourceTelemetry) error {
	query, args, err := psql.Update("sources").
		Set("success_rate", t.SuccessRate).
		Set("avg_response_time_ms", t.AvgResponseTime.Milliseconds()).
		Set("last_crawled", t.LastCrawled).
		Set("degraded", t.Degraded).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build telemetry update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update telemetry for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update telemetry for %s: source not found", id)
	}
	return nil
}

// ContentStore persists content items in Postgres.
type ContentStore struct {
	db DB
}

// NewContentStore builds a ContentStore.
func NewContentStore(db DB) *ContentStore { return &ContentStore{db: db} }

var contentColumns = []string{
	"id", "source_id", "source_domain", "original_url", "canonical_url",
	"content_hash", "title", "body", "byline", "published_at", "language",
	"word_count", "sports_keywords", "content_type", "summary",
	"summary_confidence", "quality_score", "relevance_score", "confidence",
	"needs_rescore", "extraction_status", "retry_count", "last_error",
	"is_duplicate", "duplicate_of", "is_spam", "is_active", "created_at",
}

func contentValues(item content.ContentItem) []any {
	return []any{
		item.ID, item.SourceID, item.SourceDomain, item.OriginalURL, item.CanonicalURL,
		item.ContentHash, item.Title, item.Text, item.Byline, nullableTime(item.PublishedAt), item.Language,
		item.WordCount, item.SportsKeywords, item.ContentType, item.Summary,
		item.SummaryConfidence, item.QualityScore, item.RelevanceScore, item.Confidence,
		item.NeedsRescore, string(item.ExtractionStatus), item.RetryCount, item.LastError,
		item.IsDuplicate, item.DuplicateOf, item.IsSpam, item.IsActive, item.CreatedAt,
	}
}

func scanContentItem(row pgx.Row) (content.ContentItem, error) {
	var item content.ContentItem
	var published *time.Time
	var status string
	err := row.Scan(
		&item.ID, &item.SourceID, &item.SourceDomain, &item.OriginalURL, &item.CanonicalURL,
		&item.ContentHash, &item.Title, &item.Text, &item.Byline, &published, &item.Language,
		&item.WordCount, &item.SportsKeywords, &item.ContentType, &item.Summary,
		&item.SummaryConfidence, &item.QualityScore, &item.RelevanceScore, &item.Confidence,
		&item.NeedsRescore, &status, &item.RetryCount, &item.LastError,
		&item.IsDuplicate, &item.DuplicateOf, &item.IsSpam, &item.IsActive, &item.CreatedAt,
	)
	if err != nil {
		return content.ContentItem{}, err
	}
	if published != nil {
		item.PublishedAt = *published
	}
	item.ExtractionStatus = content.ExtractionStatus(status)
	return item, nil
}

// Upsert stores an item keyed by id, replacing the mutable fields on
// conflict.
func (s *ContentStore) Upsert(ctx context.Context, item content.ContentItem) error {
	query, args, err := psql.Insert("content_items").
		Columns(contentColumns...).
		Values(contentValues(item)...).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			summary = EXCLUDED.summary,
			summary_confidence = EXCLUDED.summary_confidence,
			quality_score = EXCLUDED.quality_score,
			relevance_score = EXCLUDED.relevance_score,
			needs_rescore = EXCLUDED.needs_rescore,
			extraction_status = EXCLUDED.extraction_status,
			retry_count = EXCLUDED.retry_count,
			last_error = EXCLUDED.last_error,
			is_duplicate = EXCLUDED.is_duplicate,
			duplicate_of = EXCLUDED.duplicate_of,
			is_spam = EXCLUDED.is_spam,
			is_active = EXCLUDED.is_active`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

// Get returns the item with the given id, if any.
func (s *ContentStore) Get(ctx context.Context, id string) (content.ContentItem, bool, error) {
	return s.getOne(ctx, sq.Eq{"id": id})
}

// GetByHash returns the item with the given content hash, if any.
func (s *ContentStore) GetByHash(ctx context.Context, hash string) (content.ContentItem, bool, error) {
	return s.getOne(ctx, sq.Eq{"content_hash": hash})
}

// GetByCanonicalURL returns the item with the given canonical URL, if any.
func (s *ContentStore) GetByCanonicalURL(ctx context.Context, url string) (content.ContentItem, bool, error) {
	return s.getOne(ctx, sq.Eq{"canonical_url": url})
}

func (s *ContentStore) getOne(ctx context.Context, pred sq.Eq) (content.ContentItem, bool, error) {
	query, args, err := psql.Select(contentColumns...).
		From("content_items").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return content.ContentItem{}, false, fmt.Errorf("build get query: %w", err)
	}
	item, err := scanContentItem(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return content.ContentItem{}, false, nil
	}
	if err != nil {
		return content.ContentItem{}, false, fmt.Errorf("get content item: %w", err)
	}
	return item, true, nil
}

// RecentExtracted lists successfully extracted items created since the
// given time, newest first.
func (s *ContentStore) RecentExtracted(ctx context.Context, since time.Time, limit int) ([]content.ContentItem, error) {
	builder := psql.Select(contentColumns...).
		From("content_items").
		Where(sq.Eq{"extraction_status": string(content.ExtractionExtracted)}).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent extracted: %w", err)
	}
	defer rows.Close()

	var items []content.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent extracted rows: %w", err)
	}
	return items, nil
}

// JobStore persists ingestion jobs in Postgres.
type JobStore struct {
	db DB
}

// NewJobStore builds a JobStore.
func NewJobStore(db DB) *JobStore { return &JobStore{db: db} }

// Create inserts the job record.
func (s *JobStore) Create(ctx context.Context, job content.IngestionJob) error {
	query, args, err := psql.Insert("ingestion_jobs").
		Columns(
			"id", "source_id", "status", "items_discovered", "items_processed",
			"items_successful", "items_failed", "started_at", "completed_at",
			"error_message",
		).
		Values(
			job.ID, job.SourceID, string(job.Status), job.ItemsDiscovered, job.ItemsProcessed,
			job.ItemsSuccessful, job.ItemsFailed, nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
			job.ErrorMessage,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build create job query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// Update rewrites the job's mutable fields.
func (s *JobStore) Update(ctx context.Context, job content.IngestionJob) error {
	query, args, err := psql.Update("ingestion_jobs").
		Set("status", string(job.Status)).
		Set("items_processed", job.ItemsProcessed).
		Set("items_successful", job.ItemsSuccessful).
		Set("items_failed", job.ItemsFailed).
		Set("completed_at", nullableTime(job.CompletedAt)).
		Set("error_message", job.ErrorMessage).
		Where(sq.Eq{"id": job.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update job query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: not found", job.ID)
	}
	return nil
}

// Get returns a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (content.IngestionJob, error) {
	query, args, err := psql.Select(
		"id", "source_id", "status", "items_discovered", "items_processed",
		"items_successful", "items_failed", "started_at", "completed_at",
		"error_message",
	).
		From("ingestion_jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return content.IngestionJob{}, fmt.Errorf("build get job query: %w", err)
	}

	var job content.IngestionJob
	var status string
	var started, completed *time.Time
	err = s.db.QueryRow(ctx, query, args...).Scan(
		&job.ID, &job.SourceID, &status, &job.ItemsDiscovered, &job.ItemsProcessed,
		&job.ItemsSuccessful, &job.ItemsFailed, &started, &completed,
		&job.ErrorMessage,
	)
	if err != nil {
		return content.IngestionJob{}, fmt.Errorf("get job %s: %w", id, err)
	}
	job.Status = content.JobStatus(status)
	if started != nil {
		job.StartedAt = *started
	}
	if completed != nil {
		job.CompletedAt = *completed
	}
	return job, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
