package rank

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// pgQuerier is the slice of the pgx pool the backend uses. pgxpool.Pool
// satisfies it, as do the pgxmock test doubles.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres ranks with Postgres full-text search. The content_items table
// carries a generated tsvector over title (weight A) and text (weight D);
// quality and freshness fold into the ordering expression so the database
// returns pages already in final base order. Personalization re-ranks
// within the fetched page.
type Postgres struct {
	db     pgQuerier
	params Params
	logger *zap.Logger
}

// NewPostgres builds the Postgres backend.
func NewPostgres(db pgQuerier, params Params, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, params: params, logger: logger}
}

func (p *Postgres) Name() string { return "postgres" }

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Index upserts the searchable projection of an item, keyed by
// canonical_url so concurrent indexers converge on one row per story.
func (p *Postgres) Index(ctx context.Context, item content.ContentItem) error {
	query, args, err := psql.Insert("content_items").
		Columns(
			"id", "source_id", "source_domain", "canonical_url", "content_hash",
			"title", "body", "byline", "published_at", "language", "word_count",
			"sports_keywords", "content_type", "quality_score",
			"is_duplicate", "is_spam", "is_active", "created_at",
		).
		Values(
			item.ID, item.SourceID, item.SourceDomain, item.CanonicalURL, item.ContentHash,
			item.Title, item.Text, item.Byline, nullableTime(item.PublishedAt), item.Language, item.WordCount,
			item.SportsKeywords, item.ContentType, item.QualityScore,
			item.IsDuplicate, item.IsSpam, item.IsActive, item.CreatedAt,
		).
		Suffix(`ON CONFLICT (canonical_url) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			published_at = EXCLUDED.published_at,
			quality_score = EXCLUDED.quality_score,
			is_duplicate = EXCLUDED.is_duplicate,
			is_spam = EXCLUDED.is_spam,
			is_active = EXCLUDED.is_active`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build index query: %w", err)
	}
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("index item %s: %w", item.ID, err)
	}
	return nil
}

// Remove deactivates an item rather than deleting the row.
func (p *Postgres) Remove(ctx context.Context, id string) error {
	query, args, err := psql.Update("content_items").
		Set("is_active", false).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove query: %w", err)
	}
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("remove item %s: %w", id, err)
	}
	return nil
}

// Search runs the ranked query against Postgres FTS.
func (p *Postgres) Search(ctx context.Context, q Query) (Result, error) {
	limit := p.params.clampLimit(q.Limit)
	hash := queryHash(q)

	var after *cursor
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor, hash)
		if err != nil {
			return Result{}, err
		}
		after = &c
	}

	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	halfLife := p.params.FreshnessHalfLife.Seconds()

	scoreExpr := fmt.Sprintf(`(
		CASE WHEN ? = '' THEN 0
		     ELSE ts_rank_cd(search_vector, plainto_tsquery('english', ?)) /
		          (ts_rank_cd(search_vector, plainto_tsquery('english', ?)) + 1)
		END
		+ %f * quality_score
		+ %f * CASE WHEN published_at IS NULL THEN 0
		            ELSE power(2, -extract(epoch FROM (?::timestamptz - published_at)) / %f)
		       END
	)`, p.params.QualityWeight, p.params.FreshnessWeight, halfLife)

	inner := psql.Select(
		"id", "source_id", "source_domain", "canonical_url", "content_hash",
		"title", "body", "byline", "published_at", "language", "word_count",
		"sports_keywords", "content_type", "quality_score", "created_at",
	).
		Column(sq.Expr(scoreExpr+" AS score", q.Text, q.Text, q.Text, now)).
		Column("count(*) OVER() AS total").
		From("content_items").
		Where(sq.Eq{"is_active": true, "is_duplicate": false})

	if !q.IncludeSpam {
		inner = inner.Where(sq.Eq{"is_spam": false})
	}
	if q.Text != "" {
		inner = inner.Where(
			sq.Expr("search_vector @@ plainto_tsquery('english', ?)", q.Text),
		)
	}
	if len(q.Sports) > 0 {
		inner = inner.Where(sq.Expr("sports_keywords && ?", q.Sports))
	}
	if len(q.Sources) > 0 {
		inner = inner.Where(sq.Eq{"source_domain": q.Sources})
	}
	if len(q.ContentTypes) > 0 {
		inner = inner.Where(sq.Eq{"content_type": q.ContentTypes})
	}

	// The keyset predicate lives on an outer select so the total window
	// still counts every match, not just the rows past the cursor.
	const pubKey = "COALESCE(published_at, 'epoch'::timestamptz)"
	builder := psql.Select("*").FromSelect(inner, "ranked")
	if after != nil {
		cp := after.published()
		if cp.IsZero() {
			cp = time.Unix(0, 0).UTC()
		}
		if q.SortBy == SortRecent {
			builder = builder.Where(sq.Expr(
				pubKey+" < ? OR ("+pubKey+" = ? AND score < ?) OR ("+pubKey+" = ? AND score = ? AND canonical_url > ?)",
				cp, cp, after.Score, cp, after.Score, after.CanonicalURL,
			))
		} else {
			builder = builder.Where(sq.Expr(
				"score < ? OR (score = ? AND "+pubKey+" < ?) OR (score = ? AND "+pubKey+" = ? AND canonical_url > ?)",
				after.Score, after.Score, cp, after.Score, cp, after.CanonicalURL,
			))
		}
	}

	order := []string{"score DESC", pubKey + " DESC", "canonical_url ASC"}
	if q.SortBy == SortRecent {
		order = []string{pubKey + " DESC", "score DESC", "canonical_url ASC"}
	}

	query, args, err := builder.
		OrderBy(order...).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return Result{}, fmt.Errorf("build search query: %w", err)
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	var last cursor
	total := 0
	for rows.Next() {
		var item content.ContentItem
		var published *time.Time
		var score float64
		if err := rows.Scan(
			&item.ID, &item.SourceID, &item.SourceDomain, &item.CanonicalURL, &item.ContentHash,
			&item.Title, &item.Text, &item.Byline, &published, &item.Language, &item.WordCount,
			&item.SportsKeywords, &item.ContentType, &item.QualityScore, &item.CreatedAt,
			&score, &total,
		); err != nil {
			return Result{}, fmt.Errorf("scan search row: %w", err)
		}
		if published != nil {
			item.PublishedAt = *published
		}
		item.IsActive = true
		// The cursor records the database's own sort values, not the
		// personalization-adjusted score.
		last = cursorAfter(score, item.PublishedAt, item.CanonicalURL, hash)
		hits = append(hits, Hit{Item: item, Score: score + p.params.personal(item, q.Profile)})
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("search rows: %w", err)
	}

	if q.Profile != nil {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}

	result := Result{Hits: hits, Total: total, Backend: p.Name()}
	if len(hits) == limit && limit > 0 {
		result.NextCursor = encodeCursor(last)
	}
	return result, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
