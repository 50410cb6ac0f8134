package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/dedup"
	"github.com/CornerLeague/Corner-League-Bot/internal/extract"
	"github.com/CornerLeague/Corner-League-Bot/internal/quality"
	"github.com/CornerLeague/Corner-League-Bot/internal/queue"
	"github.com/CornerLeague/Corner-League-Bot/internal/rank"
	"github.com/CornerLeague/Corner-League-Bot/internal/scheduler"
	"github.com/CornerLeague/Corner-League-Bot/internal/store"
	"github.com/CornerLeague/Corner-League-Bot/internal/trending"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("item-%03d", g.n)
}

type fakeFetcher struct {
	mu   sync.Mutex
	docs map[string]content.RawDocument
	errs map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, source content.Source, url string) (content.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return content.RawDocument{}, err
	}
	doc, ok := f.docs[url]
	if !ok {
		return content.RawDocument{}, content.NewPermanentFetchError(url, 404, errors.New("not found"))
	}
	doc.SourceID = source.ID
	doc.URL = url
	doc.FinalURL = url
	doc.StatusCode = 200
	doc.ContentType = "text/html"
	doc.Duration = 50 * time.Millisecond
	return doc, nil
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (s *fakeSummarizer) Summarize(ctx context.Context, item content.ContentItem) (content.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, item.ID)
	if s.fail {
		return content.Summary{}, errors.New("summarizer down")
	}
	return content.Summary{Text: "Summary of " + item.Title, Confidence: 0.85}, nil
}

type getFailSourceStore struct {
	*store.MemorySourceStore
}

func (s *getFailSourceStore) Get(ctx context.Context, id string) (content.Source, error) {
	return content.Source{}, errors.New("registry unavailable")
}

func articleHTML(title, published, body string) []byte {
	return []byte(fmt.Sprintf(`<html lang="en"><head>
<meta property="og:title" content="%s">
<meta property="article:published_time" content="%s">
<meta name="author" content="Dana Reporter">
<title>%s</title>
</head><body><article><p>%s</p></article></body></html>`, title, published, title, body))
}

func uniqueWords(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return strings.Join(words, " ")
}

func recapBody(prefix string) string {
	return "The Lakers closed out an NBA basketball playoff win over the Celtics. " +
		uniqueWords(prefix, 160)
}

type env struct {
	tasks    chan scheduler.Task
	pipe     *Pipeline
	items    *store.MemoryContentStore
	jobs     *store.MemoryJobStore
	registry *store.MemorySourceStore
	engine   *rank.Engine
	detector *trending.Detector
	fetcher  *fakeFetcher
	summ     *fakeSummarizer
	cancels  *scheduler.Cancellations
	clk      *stubClock
}

func testSource() content.Source {
	return content.Source{
		ID:             "src-1",
		Name:           "Example Sports",
		Domain:         "example.com",
		BaseURL:        "https://example.com",
		CrawlFrequency: time.Hour,
		QualityTier:    content.TierPremium,
		Reputation:     0.9,
		Active:         true,
	}
}

func newEnv(t *testing.T, sourceStore content.SourceStore) *env {
	t.Helper()
	logger := zap.NewNop()
	clk := &stubClock{now: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}

	registry := store.NewMemorySourceStore(testSource())
	if sourceStore == nil {
		sourceStore = registry
	}

	items := store.NewMemoryContentStore()
	jobs := store.NewMemoryJobStore()
	backend := rank.NewMemory(rank.DefaultParams())
	engine := rank.NewEngine(backend, clk, rank.EngineOptions{}, logger)
	detector := trending.NewDetector(trending.Options{}, clk, queue.NewMemory(8), logger)
	fetcher := &fakeFetcher{docs: map[string]content.RawDocument{}, errs: map[string]error{}}
	summ := &fakeSummarizer{}
	cancels := scheduler.NewCancellations()
	tasks := make(chan scheduler.Task, 16)

	pipe := New(
		Options{FetchWorkers: 2, ProcessWorkers: 2},
		tasks,
		fetcher,
		scheduler.NewPoliteness(4, 16, 100),
		scheduler.NewTelemetry(sourceStore, 0.3, 3, 4, clk, logger),
		extract.New(clk, &seqIDGen{}, logger),
		dedup.NewIndex(dedup.Options{}, logger),
		quality.NewScorer(quality.Options{}, logger),
		engine,
		detector,
		items,
		jobs,
		sourceStore,
		summ,
		cancels,
		&seqIDGen{},
		clk,
		logger,
	)
	return &env{
		tasks: tasks, pipe: pipe, items: items, jobs: jobs, registry: registry,
		engine: engine, detector: detector, fetcher: fetcher, summ: summ,
		cancels: cancels, clk: clk,
	}
}

func (e *env) run(t *testing.T, tasks ...scheduler.Task) {
	t.Helper()
	for _, task := range tasks {
		e.tasks <- task
	}
	close(e.tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.pipe.Run(ctx)
}

func (e *env) createJob(t *testing.T, id string, discovered int64) {
	t.Helper()
	err := e.jobs.Create(context.Background(), content.IngestionJob{
		ID:              id,
		SourceID:        "src-1",
		Status:          content.JobRunning,
		ItemsDiscovered: discovered,
		StartedAt:       e.clk.Now(),
	})
	require.NoError(t, err)
}

func TestPipelineProcessesTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 1)
	e.fetcher.docs["https://example.com/recap"] = content.RawDocument{
		Body: articleHTML("Lakers Beat Celtics in Overtime", "2026-03-14T22:30:00Z", recapBody("recap")),
	}

	e.run(t, scheduler.Task{
		Source: testSource(), JobID: "job-1", JobItems: 1, URL: "https://example.com/recap",
	})

	item, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/recap")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content.ExtractionExtracted, item.ExtractionStatus)
	require.False(t, item.IsDuplicate)
	require.False(t, item.IsSpam)
	require.Greater(t, item.QualityScore, 0.3)
	require.Equal(t, "Summary of Lakers Beat Celtics in Overtime", item.Summary)

	result, err := e.engine.Search(context.Background(), rank.Query{Text: "lakers", Now: e.clk.Now()})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, item.ID, result.Hits[0].Item.ID)

	job, err := e.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, content.JobCompleted, job.Status)
	require.Equal(t, int64(1), job.ItemsSuccessful)
	require.Equal(t, e.clk.Now(), job.CompletedAt)

	src, err := e.registry.Get(context.Background(), "src-1")
	require.NoError(t, err)
	require.Equal(t, e.clk.Now(), src.LastCrawled)
}

func TestPipelineFetchFailureCountsFailed(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 1)
	e.fetcher.errs["https://example.com/gone"] = content.NewPermanentFetchError(
		"https://example.com/gone", 410, errors.New("gone"))

	e.run(t, scheduler.Task{
		Source: testSource(), JobID: "job-1", JobItems: 1, URL: "https://example.com/gone",
	})

	job, err := e.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, content.JobCompleted, job.Status)
	require.Equal(t, int64(1), job.ItemsFailed)
	require.Equal(t, int64(0), job.ItemsSuccessful)
	require.Equal(t, 0, e.items.Len())
}

func TestPipelineDropsQueuedTasksOfCancelledJob(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 2)
	e.fetcher.docs["https://example.com/recap"] = content.RawDocument{
		Body: articleHTML("Lakers Beat Celtics in Overtime", "2026-03-14T22:30:00Z", recapBody("recap")),
	}

	job, err := e.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	job.Status = content.JobCancelled
	job.CompletedAt = e.clk.Now()
	require.NoError(t, e.jobs.Update(context.Background(), job))
	e.cancels.Cancel("job-1")

	e.run(t, scheduler.Task{
		Source: testSource(), JobID: "job-1", JobItems: 2, URL: "https://example.com/recap",
	})

	require.Equal(t, 0, e.items.Len())

	got, err := e.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, content.JobCancelled, got.Status)
	require.Equal(t, int64(0), got.ItemsSuccessful)
	require.Equal(t, int64(0), got.ItemsFailed)
}

func TestPipelineExactDuplicateCollapsed(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 2)
	body := articleHTML("Lakers Beat Celtics in Overtime", "2026-03-14T22:30:00Z", recapBody("recap"))
	e.fetcher.docs["https://example.com/recap"] = content.RawDocument{Body: body}
	e.fetcher.docs["https://example.com/recap-syndicated"] = content.RawDocument{Body: body}

	e.run(t,
		scheduler.Task{Source: testSource(), JobID: "job-1", JobItems: 2, URL: "https://example.com/recap"},
		scheduler.Task{Source: testSource(), JobID: "job-1", JobItems: 2, URL: "https://example.com/recap-syndicated"},
	)

	require.Equal(t, 2, e.items.Len())

	first, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/recap")
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/recap-syndicated")
	require.NoError(t, err)
	require.True(t, ok)

	var dup, canonical content.ContentItem
	if first.IsDuplicate {
		dup, canonical = first, second
	} else {
		dup, canonical = second, first
	}
	require.True(t, dup.IsDuplicate)
	require.False(t, canonical.IsDuplicate)
	require.Equal(t, canonical.ID, dup.DuplicateOf)

	result, err := e.engine.Search(context.Background(), rank.Query{Text: "lakers", Now: e.clk.Now()})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, canonical.ID, result.Hits[0].Item.ID)
}

func TestPipelineEarlierPublishedSupersedes(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 2)
	shared := recapBody("shingle")
	e.fetcher.docs["https://example.com/late"] = content.RawDocument{
		Body: articleHTML("Lakers Beat Celtics in Overtime", "2026-03-15T02:00:00Z", shared+" syndicated copy appended"),
	}
	e.fetcher.docs["https://example.com/early"] = content.RawDocument{
		Body: articleHTML("Lakers Beat Celtics in Overtime", "2026-03-14T22:30:00Z", shared),
	}

	// Single worker so the late copy is observed first.
	e.pipe.opts.FetchWorkers = 1
	e.pipe.opts.ProcessWorkers = 1
	e.run(t,
		scheduler.Task{Source: testSource(), JobID: "job-1", JobItems: 2, URL: "https://example.com/late"},
		scheduler.Task{Source: testSource(), JobID: "job-1", JobItems: 2, URL: "https://example.com/early"},
	)

	late, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/late")
	require.NoError(t, err)
	require.True(t, ok)
	early, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/early")
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, late.IsDuplicate)
	require.Equal(t, early.ID, late.DuplicateOf)
	require.False(t, early.IsDuplicate)

	result, err := e.engine.Search(context.Background(), rank.Query{Text: "lakers", Now: e.clk.Now()})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, early.ID, result.Hits[0].Item.ID)
}

func TestPipelineRecrawlRefreshesRecord(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 1)
	e.createJob(t, "job-2", 1)
	url := "https://example.com/live"
	e.fetcher.docs[url] = content.RawDocument{
		Body: articleHTML("Live Updates From the Finals", "2026-03-14T22:30:00Z", recapBody("live")),
	}

	run := func(jobID string) {
		tasks := make(chan scheduler.Task, 1)
		e.pipe.tasks = tasks
		tasks <- scheduler.Task{Source: testSource(), JobID: jobID, JobItems: 1, URL: url}
		close(tasks)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.pipe.Run(ctx)
	}
	run("job-1")
	run("job-2")

	require.Equal(t, 1, e.items.Len())
}

func TestPipelineDegradedScoringWhenRegistryDown(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &getFailSourceStore{store.NewMemorySourceStore(testSource())})
	e.createJob(t, "job-1", 1)
	e.fetcher.docs["https://example.com/recap"] = content.RawDocument{
		Body: articleHTML("Lakers Beat Celtics in Overtime", "2026-03-14T22:30:00Z", recapBody("recap")),
	}

	e.run(t, scheduler.Task{
		Source: testSource(), JobID: "job-1", JobItems: 1, URL: "https://example.com/recap",
	})

	item, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/recap")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, item.NeedsRescore)
	require.InDelta(t, 0.4, item.QualityScore, 0.001)
}

func TestPipelineSummarizerFailureNonFatal(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.summ.fail = true
	e.createJob(t, "job-1", 1)
	e.fetcher.docs["https://example.com/recap"] = content.RawDocument{
		Body: articleHTML("Lakers Beat Celtics in Overtime", "2026-03-14T22:30:00Z", recapBody("recap")),
	}

	e.run(t, scheduler.Task{
		Source: testSource(), JobID: "job-1", JobItems: 1, URL: "https://example.com/recap",
	})

	item, ok, err := e.items.GetByCanonicalURL(context.Background(), "https://example.com/recap")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, item.Summary)

	job, err := e.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), job.ItemsSuccessful)
	require.Len(t, e.summ.calls, 1)
}

func TestPipelineExtractionFailureRecorded(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.pipe.opts.MaxExtractRetries = 2
	for i := 1; i <= 3; i++ {
		e.createJob(t, fmt.Sprintf("job-%d", i), 1)
	}
	url := "https://example.com/broken"
	e.fetcher.docs[url] = content.RawDocument{
		Body: []byte("<html><body><p>too short</p></body></html>"),
	}

	run := func(jobID string) {
		tasks := make(chan scheduler.Task, 1)
		e.pipe.tasks = tasks
		tasks <- scheduler.Task{Source: testSource(), JobID: jobID, JobItems: 1, URL: url}
		close(tasks)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.pipe.Run(ctx)
	}

	run("job-1")
	record, ok, err := e.items.GetByCanonicalURL(context.Background(), url)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content.ExtractionFailed, record.ExtractionStatus)
	require.Equal(t, 1, record.RetryCount)
	require.NotEmpty(t, record.LastError)
	require.False(t, record.IsActive)

	run("job-2")
	record, _, err = e.items.GetByCanonicalURL(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, 2, record.RetryCount)

	// At the cap the record stays permanently failed.
	run("job-3")
	record, _, err = e.items.GetByCanonicalURL(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, 2, record.RetryCount)

	job, err := e.jobs.Get(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, int64(1), job.ItemsFailed)
}

func TestPipelineObservesTrendingTerms(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.createJob(t, "job-1", 1)
	e.fetcher.docs["https://example.com/recap"] = content.RawDocument{
		Body: articleHTML("Walkoff Stunner Ends the Series", "2026-03-14T22:30:00Z", recapBody("recap")),
	}

	e.run(t, scheduler.Task{
		Source: testSource(), JobID: "job-1", JobItems: 1, URL: "https://example.com/recap",
	})

	terms := e.detector.Rollover(context.Background())
	var seen bool
	for _, term := range terms {
		if term.Normalized == "walkoff" {
			seen = true
		}
	}
	require.True(t, seen)
}
