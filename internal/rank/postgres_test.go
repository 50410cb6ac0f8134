package rank

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPostgresTest(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock, DefaultParams(), zap.NewNop()), mock
}

func TestPostgresIndex(t *testing.T) {
	t.Parallel()

	backend, mock := newPostgresTest(t)
	item := doc("a", "Lakers news", "lakers reporting from the beat")

	mock.ExpectExec(`INSERT INTO content_items .+ON CONFLICT \(canonical_url\)`).
		WithArgs(
			item.ID, item.SourceID, item.SourceDomain, item.CanonicalURL, item.ContentHash,
			item.Title, item.Text, item.Byline, item.PublishedAt, item.Language, item.WordCount,
			item.SportsKeywords, item.ContentType, item.QualityScore,
			item.IsDuplicate, item.IsSpam, item.IsActive, item.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, backend.Index(context.Background(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIndexError(t *testing.T) {
	t.Parallel()

	backend, mock := newPostgresTest(t)
	item := doc("a", "Lakers news", "body")

	mock.ExpectExec("INSERT INTO content_items").
		WithArgs(
			item.ID, item.SourceID, item.SourceDomain, item.CanonicalURL, item.ContentHash,
			item.Title, item.Text, item.Byline, item.PublishedAt, item.Language, item.WordCount,
			item.SportsKeywords, item.ContentType, item.QualityScore,
			item.IsDuplicate, item.IsSpam, item.IsActive, item.CreatedAt,
		).
		WillReturnError(errors.New("connection reset"))

	err := backend.Index(context.Background(), item)
	require.Error(t, err)
	require.Contains(t, err.Error(), "index item a")
}

func TestPostgresRemove(t *testing.T) {
	t.Parallel()

	backend, mock := newPostgresTest(t)

	mock.ExpectExec("UPDATE content_items SET is_active").
		WithArgs(false, "a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, backend.Remove(context.Background(), "a"))
	require.NoError(t, mock.ExpectationsWereMet())
}

var searchCols = []string{
	"id", "source_id", "source_domain", "canonical_url", "content_hash",
	"title", "body", "byline", "published_at", "language", "word_count",
	"sports_keywords", "content_type", "quality_score", "created_at",
	"score", "total",
}

func TestPostgresSearch(t *testing.T) {
	t.Parallel()

	backend, mock := newPostgresTest(t)
	published := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	created := published.Add(time.Hour)

	rows := pgxmock.NewRows(searchCols).AddRow(
		"a", "src-1", "example.com", "https://example.com/a", "hash-a",
		"Lakers news", "lakers reporting", "Dana Reporter", &published, "en", 320,
		[]string{"nba", "basketball"}, "game_recap", 0.8, created,
		1.42, 1,
	)

	mock.ExpectQuery("SELECT (.+) FROM content_items").
		WithArgs("lakers", "lakers", "lakers", testNow, true, false, false, "lakers").
		WillReturnRows(rows)

	res, err := backend.Search(context.Background(), Query{Text: "lakers", Now: testNow})
	require.NoError(t, err)
	require.Equal(t, "postgres", res.Backend)
	require.Equal(t, 1, res.Total)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "a", res.Hits[0].Item.ID)
	require.Equal(t, published, res.Hits[0].Item.PublishedAt)
	require.Equal(t, 1.42, res.Hits[0].Score)
	require.Empty(t, res.NextCursor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearchCursorKeyset(t *testing.T) {
	t.Parallel()

	backend, mock := newPostgresTest(t)
	published := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	created := published.Add(time.Hour)

	q := Query{Text: "lakers", Limit: 2, Now: testNow}
	hash := queryHash(q)
	token := encodeCursor(cursorAfter(1.2, published, "https://example.com/a", hash))

	rows := pgxmock.NewRows(searchCols).AddRow(
		"b", "src-1", "example.com", "https://example.com/b", "hash-b",
		"Lakers follow-up", "more lakers reporting", "", &published, "en", 280,
		[]string(nil), "", 0.7, created,
		1.1, 5,
	).AddRow(
		"c", "src-1", "example.com", "https://example.com/c", "hash-c",
		"Lakers notebook", "lakers notes", "", &published, "en", 240,
		[]string(nil), "", 0.6, created,
		0.9, 5,
	)

	// The cursor becomes a keyset predicate over (score, published_at,
	// canonical_url), never an offset.
	mock.ExpectQuery("SELECT (.+) FROM content_items").
		WithArgs(
			"lakers", "lakers", "lakers", testNow, true, false, false, "lakers",
			1.2, 1.2, published, 1.2, published, "https://example.com/a",
		).
		WillReturnRows(rows)

	q.Cursor = token
	res, err := backend.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	require.Equal(t, 5, res.Total)
	require.NotEmpty(t, res.NextCursor)

	next, err := decodeCursor(res.NextCursor, hash)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/c", next.CanonicalURL)
	require.Equal(t, 0.9, next.Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearchBadCursor(t *testing.T) {
	t.Parallel()

	backend, _ := newPostgresTest(t)
	_, err := backend.Search(context.Background(), Query{Text: "lakers", Cursor: "@@@"})
	require.ErrorIs(t, err, ErrBadCursor)
}
