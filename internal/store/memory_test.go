package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

func TestMemorySourceStoreListDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemorySourceStore(
		content.Source{ID: "fresh", Active: true, QualityTier: content.TierQuality,
			CrawlFrequency: time.Hour, LastCrawled: now.Add(-10 * time.Minute)},
		content.Source{ID: "due", Active: true, QualityTier: content.TierQuality,
			CrawlFrequency: time.Hour, LastCrawled: now.Add(-2 * time.Hour)},
		content.Source{ID: "never", Active: true, QualityTier: content.TierPremium,
			CrawlFrequency: time.Hour},
		content.Source{ID: "off", Active: false, CrawlFrequency: time.Hour},
	)

	due, err := store.ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "never", due[0].ID)
	require.Equal(t, "due", due[1].ID)
}

func TestMemorySourceStoreTelemetryRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemorySourceStore(content.Source{ID: "src-1", Active: true})
	crawled := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	err := store.UpdateTelemetry(context.Background(), "src-1", content.SourceTelemetry{
		SuccessRate:     0.7,
		AvgResponseTime: 200 * time.Millisecond,
		LastCrawled:     crawled,
		Degraded:        true,
	})
	require.NoError(t, err)

	src, err := store.Get(context.Background(), "src-1")
	require.NoError(t, err)
	require.Equal(t, 0.7, src.SuccessRate)
	require.True(t, src.Degraded)
	require.Equal(t, crawled, src.LastCrawled)

	require.Error(t, store.UpdateTelemetry(context.Background(), "ghost", content.SourceTelemetry{}))
}

func TestMemoryContentStoreLookups(t *testing.T) {
	t.Parallel()

	store := NewMemoryContentStore()
	item := storedItem()
	require.NoError(t, store.Upsert(context.Background(), item))

	got, ok, err := store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item.CanonicalURL, got.CanonicalURL)

	got, ok, err = store.GetByHash(context.Background(), item.ContentHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item.ID, got.ID)

	got, ok, err = store.GetByCanonicalURL(context.Background(), item.CanonicalURL)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item.ID, got.ID)

	_, ok, err = store.GetByHash(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryContentStoreUpsertReplacesKeys(t *testing.T) {
	t.Parallel()

	store := NewMemoryContentStore()
	item := storedItem()
	require.NoError(t, store.Upsert(context.Background(), item))

	item.ContentHash = "hash-2"
	require.NoError(t, store.Upsert(context.Background(), item))
	require.Equal(t, 1, store.Len())

	_, ok, err := store.GetByHash(context.Background(), "hash-1")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.GetByHash(context.Background(), "hash-2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryContentStoreRecentExtracted(t *testing.T) {
	t.Parallel()

	store := NewMemoryContentStore()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	old := storedItem()
	old.ID, old.ContentHash, old.CanonicalURL = "old", "h-old", "https://example.com/old"
	old.CreatedAt = base.Add(-48 * time.Hour)

	failed := storedItem()
	failed.ID, failed.ContentHash, failed.CanonicalURL = "failed", "h-f", "https://example.com/f"
	failed.ExtractionStatus = content.ExtractionFailed
	failed.CreatedAt = base

	newer := storedItem()
	newer.ID, newer.ContentHash, newer.CanonicalURL = "newer", "h-n", "https://example.com/n"
	newer.CreatedAt = base.Add(-time.Hour)

	newest := storedItem()
	newest.ID, newest.ContentHash, newest.CanonicalURL = "newest", "h-nn", "https://example.com/nn"
	newest.CreatedAt = base

	for _, item := range []content.ContentItem{old, failed, newer, newest} {
		require.NoError(t, store.Upsert(context.Background(), item))
	}

	items, err := store.RecentExtracted(context.Background(), base.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "newest", items[0].ID)
	require.Equal(t, "newer", items[1].ID)
}

func TestMemoryJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryJobStore()
	job := content.IngestionJob{ID: "job-1", SourceID: "src-1", Status: content.JobRunning}

	require.NoError(t, store.Create(context.Background(), job))
	require.Error(t, store.Create(context.Background(), job))

	job.Status = content.JobCompleted
	job.ItemsProcessed = 4
	require.NoError(t, store.Update(context.Background(), job))

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, content.JobCompleted, got.Status)
	require.Equal(t, int64(4), got.ItemsProcessed)

	require.Error(t, store.Update(context.Background(), content.IngestionJob{ID: "ghost"}))
	_, err = store.Get(context.Background(), "ghost")
	require.Error(t, err)
}
