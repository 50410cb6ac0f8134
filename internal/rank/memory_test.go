package rank

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func doc(id, title, text string, opts ...func(*content.ContentItem)) content.ContentItem {
	item := content.ContentItem{
		ID:           id,
		CanonicalURL: "https://example.com/" + id,
		Title:        title,
		Text:         text,
		QualityScore: 0.5,
		PublishedAt:  testNow.Add(-2 * time.Hour),
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(&item)
	}
	return item
}

func withQuality(q float64) func(*content.ContentItem) {
	return func(i *content.ContentItem) { i.QualityScore = q }
}

func withPublished(t time.Time) func(*content.ContentItem) {
	return func(i *content.ContentItem) { i.PublishedAt = t }
}

func withSports(sports ...string) func(*content.ContentItem) {
	return func(i *content.ContentItem) { i.SportsKeywords = sports }
}

func mustIndex(t *testing.T, m *Memory, items ...content.ContentItem) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, m.Index(context.Background(), item))
	}
}

func TestMemorySearchRelevance(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m,
		doc("a", "Lakers clinch playoff berth", "The Lakers secured a playoff spot with a comfortable win over the visiting team on Tuesday."),
		doc("b", "Injury report ahead of the weekend", "Several starters are questionable for the weekend slate across the league."),
		doc("c", "Draft preview", "Scouts weigh in on the top prospects available in this summer draft class."),
	)

	res, err := m.Search(context.Background(), Query{Text: "lakers playoff", Now: testNow})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	require.Equal(t, "a", res.Hits[0].Item.ID)
	require.Equal(t, "memory", res.Backend)
	require.False(t, res.FromCache)
}

func TestMemoryTitleBoost(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m,
		doc("title-hit", "Trade deadline winners", "A long look at roster construction across the conference this season."),
		doc("body-hit", "Roster moves roundup", "The trade deadline passed quietly for most contenders this year."),
	)

	res, err := m.Search(context.Background(), Query{Text: "trade deadline", Now: testNow})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	require.Equal(t, "title-hit", res.Hits[0].Item.ID)
	require.Greater(t, res.Hits[0].TextScore, res.Hits[1].TextScore)
}

func TestMemoryExcludesIneligible(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	spam := doc("spam", "lakers spam post", "lakers lakers lakers lakers")
	spam.IsSpam = true
	dup := doc("dup", "lakers syndicated copy", "the same lakers story again")
	dup.IsDuplicate = true
	inactive := doc("gone", "lakers removed story", "a retracted lakers story")
	inactive.IsActive = false
	mustIndex(t, m, doc("keep", "Lakers news", "Fresh lakers reporting from the beat."), spam, dup, inactive)

	res, err := m.Search(context.Background(), Query{Text: "lakers", Now: testNow})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "keep", res.Hits[0].Item.ID)

	withSpam, err := m.Search(context.Background(), Query{Text: "lakers", IncludeSpam: true, Now: testNow})
	require.NoError(t, err)
	require.Len(t, withSpam.Hits, 2, "include_spam restores spam hits but never duplicates or inactive items")
}

func TestMemoryFilters(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	nba := doc("nba", "League roundup", "Scores and standings from around the league.", withSports("nba", "basketball"))
	nhl := doc("nhl", "Rink report", "Goals and saves from last night.", withSports("nhl", "hockey"))
	nba.ContentType = "analysis"
	nhl.ContentType = "game_recap"
	mustIndex(t, m, nba, nhl)

	bySport, err := m.Search(context.Background(), Query{Sports: []string{"hockey"}, Now: testNow})
	require.NoError(t, err)
	require.Len(t, bySport.Hits, 1)
	require.Equal(t, "nhl", bySport.Hits[0].Item.ID)

	byType, err := m.Search(context.Background(), Query{ContentTypes: []string{"analysis"}, Now: testNow})
	require.NoError(t, err)
	require.Len(t, byType.Hits, 1)
	require.Equal(t, "nba", byType.Hits[0].Item.ID)
}

func TestMemoryFreshnessAndQuality(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m,
		doc("fresh", "League roundup one", "identical body text", withQuality(0.5), withPublished(testNow.Add(-1*time.Hour))),
		doc("stale", "League roundup two", "identical body text", withQuality(0.5), withPublished(testNow.Add(-72*time.Hour))),
		doc("better", "League roundup three", "identical body text", withQuality(0.95), withPublished(testNow.Add(-72*time.Hour))),
	)

	res, err := m.Search(context.Background(), Query{Now: testNow})
	require.NoError(t, err)
	require.Len(t, res.Hits, 3)
	require.Equal(t, "fresh", res.Hits[0].Item.ID, "recent items outrank stale ones at equal quality")
	require.Equal(t, "better", res.Hits[1].Item.ID, "higher quality outranks equal-age items")
	require.Equal(t, "stale", res.Hits[2].Item.ID)
}

func TestMemoryPersonalization(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m,
		doc("hoops", "League roundup", "identical body text", withSports("basketball")),
		doc("pucks", "Rink roundup", "identical body text", withSports("hockey")),
	)

	profile := &Profile{Sports: map[string]float64{"hockey": 1.0}}
	res, err := m.Search(context.Background(), Query{Profile: profile, Now: testNow})
	require.NoError(t, err)
	require.Equal(t, "pucks", res.Hits[0].Item.ID)
}

func TestMemoryPagination(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	for i := 0; i < 5; i++ {
		mustIndex(t, m, doc(
			fmt.Sprintf("p%d", i),
			fmt.Sprintf("Story number %d", i),
			"shared body text for pagination",
			withPublished(testNow.Add(-time.Duration(i)*time.Hour)),
		))
	}

	first, err := m.Search(context.Background(), Query{Limit: 2, Now: testNow})
	require.NoError(t, err)
	require.Len(t, first.Hits, 2)
	require.Equal(t, 5, first.Total)
	require.NotEmpty(t, first.NextCursor)

	second, err := m.Search(context.Background(), Query{Limit: 2, Cursor: first.NextCursor, Now: testNow})
	require.NoError(t, err)
	require.Len(t, second.Hits, 2)
	require.NotEqual(t, first.Hits[0].Item.ID, second.Hits[0].Item.ID)

	third, err := m.Search(context.Background(), Query{Limit: 2, Cursor: second.NextCursor, Now: testNow})
	require.NoError(t, err)
	require.Len(t, third.Hits, 1)
	require.Empty(t, third.NextCursor)
}

func TestMemoryCursorStableUnderInsert(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m,
		doc("a", "Story alpha", "shared body text", withQuality(0.9)),
		doc("b", "Story bravo", "shared body text", withQuality(0.6)),
		doc("c", "Story charlie", "shared body text", withQuality(0.3)),
	)

	first, err := m.Search(context.Background(), Query{Limit: 2, Now: testNow})
	require.NoError(t, err)
	require.Len(t, first.Hits, 2)
	require.NotEmpty(t, first.NextCursor)

	// A document indexed between pages that outranks everything must not
	// push already-served items back into the next page.
	mustIndex(t, m, doc("d", "Story delta", "shared body text", withQuality(1.0)))

	second, err := m.Search(context.Background(), Query{Limit: 2, Cursor: first.NextCursor, Now: testNow})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, h := range first.Hits {
		seen[h.Item.ID] = true
	}
	for _, h := range second.Hits {
		require.False(t, seen[h.Item.ID], "page 2 re-served %s", h.Item.ID)
	}
	require.Len(t, second.Hits, 1)
	require.Equal(t, "c", second.Hits[0].Item.ID)
}

func TestMemoryExtraTermOccurrenceNeverLowersRelevance(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	story := doc("story", "Season preview", "the lakers open the season at home next week")
	mustIndex(t, m, story, doc("filler", "Around the league", "injury notes and roster moves from every team"))

	before, err := m.Search(context.Background(), Query{Text: "lakers", Now: testNow})
	require.NoError(t, err)
	require.Len(t, before.Hits, 1)

	story.Text += " lakers"
	mustIndex(t, m, story)

	after, err := m.Search(context.Background(), Query{Text: "lakers", Now: testNow})
	require.NoError(t, err)
	require.Len(t, after.Hits, 1)
	require.GreaterOrEqual(t, after.Hits[0].TextScore, before.Hits[0].TextScore)
	require.GreaterOrEqual(t, after.Hits[0].Score, before.Hits[0].Score)
}

func TestMemoryRejectsForeignCursor(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m,
		doc("a", "Lakers news", "lakers body text here"),
		doc("b", "More Lakers news", "further lakers body text"),
	)

	first, err := m.Search(context.Background(), Query{Text: "lakers", Limit: 1, Now: testNow})
	require.NoError(t, err)
	require.NotEmpty(t, first.NextCursor)

	_, err = m.Search(context.Background(), Query{Text: "different query", Cursor: first.NextCursor, Now: testNow})
	require.ErrorIs(t, err, ErrBadCursor)

	_, err = m.Search(context.Background(), Query{Text: "lakers", Cursor: "not-base64!", Now: testNow})
	require.ErrorIs(t, err, ErrBadCursor)
}

func TestMemoryRemove(t *testing.T) {
	t.Parallel()

	m := NewMemory(DefaultParams())
	mustIndex(t, m, doc("a", "Lakers news", "lakers body text"))
	require.NoError(t, m.Remove(context.Background(), "a"))

	res, err := m.Search(context.Background(), Query{Text: "lakers", Now: testNow})
	require.NoError(t, err)
	require.Empty(t, res.Hits)
}
