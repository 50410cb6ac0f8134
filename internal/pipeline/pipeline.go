// Package pipeline runs the ingestion workers: fetching scheduled tasks,
// extracting content, collapsing duplicates, scoring quality, and feeding
// the rank engine and trending detector.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/dedup"
	"github.com/CornerLeague/Corner-League-Bot/internal/extract"
	"github.com/CornerLeague/Corner-League-Bot/internal/metrics"
	"github.com/CornerLeague/Corner-League-Bot/internal/quality"
	"github.com/CornerLeague/Corner-League-Bot/internal/rank"
	"github.com/CornerLeague/Corner-League-Bot/internal/scheduler"
	"github.com/CornerLeague/Corner-League-Bot/internal/trending"
)

// Options tunes the worker pools.
type Options struct {
	FetchWorkers   int
	ProcessWorkers int
	QueueDepth     int
	// MaxExtractRetries caps re-extraction attempts for a URL across
	// crawls before its record is left permanently failed.
	MaxExtractRetries int
	SummarizeTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.FetchWorkers <= 0 {
		o.FetchWorkers = 8
	}
	if o.ProcessWorkers <= 0 {
		o.ProcessWorkers = 4
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 64
	}
	if o.MaxExtractRetries <= 0 {
		o.MaxExtractRetries = 3
	}
	if o.SummarizeTimeout <= 0 {
		o.SummarizeTimeout = 20 * time.Second
	}
	return o
}

// Pipeline wires the fetch and processing stages together. Fetch workers
// drain the scheduler's task channel under politeness constraints; process
// workers carry each document through extraction, dedup, scoring, storage,
// and indexing.
type Pipeline struct {
	opts       Options
	tasks      <-chan scheduler.Task
	fetcher    content.Fetcher
	politeness *scheduler.Politeness
	telemetry  *scheduler.Telemetry
	extractor  *extract.Extractor
	index      *dedup.Index
	scorer     *quality.Scorer
	engine     *rank.Engine
	detector   *trending.Detector
	items      content.ContentStore
	jobs       content.JobStore
	sources    content.SourceStore
	summarizer content.Summarizer
	cancels    *scheduler.Cancellations
	idGen      content.IDGenerator
	clock      content.Clock
	logger     *zap.Logger

	jobMu  sync.Mutex
	summWG sync.WaitGroup
}

type fetched struct {
	task scheduler.Task
	doc  content.RawDocument
}

// New builds a pipeline over the scheduler's task channel.
func New(
	opts Options,
	tasks <-chan scheduler.Task,
	fetcher content.Fetcher,
	politeness *scheduler.Politeness,
	telemetry *scheduler.Telemetry,
	extractor *extract.Extractor,
	index *dedup.Index,
	scorer *quality.Scorer,
	engine *rank.Engine,
	detector *trending.Detector,
	items content.ContentStore,
	jobs content.JobStore,
	sources content.SourceStore,
	summarizer content.Summarizer,
	cancels *scheduler.Cancellations,
	idGen content.IDGenerator,
	clock content.Clock,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		opts:       opts.withDefaults(),
		tasks:      tasks,
		fetcher:    fetcher,
		politeness: politeness,
		telemetry:  telemetry,
		extractor:  extractor,
		index:      index,
		scorer:     scorer,
		engine:     engine,
		detector:   detector,
		items:      items,
		jobs:       jobs,
		sources:    sources,
		summarizer: summarizer,
		cancels:    cancels,
		idGen:      idGen,
		clock:      clock,
		logger:     logger.Named("pipeline"),
	}
}

// Run blocks until the task channel closes and all in-flight work drains.
func (p *Pipeline) Run(ctx context.Context) {
	docs := make(chan fetched, p.opts.QueueDepth)

	var fetchWG sync.WaitGroup
	for i := 0; i < p.opts.FetchWorkers; i++ {
		fetchWG.Add(1)
		go func() {
			defer fetchWG.Done()
			p.fetchLoop(ctx, docs)
		}()
	}

	var procWG sync.WaitGroup
	for i := 0; i < p.opts.ProcessWorkers; i++ {
		procWG.Add(1)
		go func() {
			defer procWG.Done()
			p.processLoop(ctx, docs)
		}()
	}

	rctx, stopRollover := context.WithCancel(ctx)
	rolloverDone := make(chan struct{})
	go func() {
		defer close(rolloverDone)
		p.rolloverLoop(rctx)
	}()

	fetchWG.Wait()
	close(docs)
	procWG.Wait()
	p.summWG.Wait()
	stopRollover()
	<-rolloverDone
}

func (p *Pipeline) fetchLoop(ctx context.Context, docs chan<- fetched) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.fetchOne(ctx, task, docs)
		}
	}
}

func (p *Pipeline) fetchOne(ctx context.Context, task scheduler.Task, docs chan<- fetched) {
	// Queued tasks of a cancelled job are dropped; the job record is
	// already terminal, so there is nothing to resolve.
	if p.cancels != nil && p.cancels.Cancelled(task.JobID) {
		p.logger.Debug("task dropped, job cancelled",
			zap.String("job", task.JobID),
			zap.String("url", task.URL),
		)
		return
	}

	metrics.IncActiveWorkers("fetch")
	defer metrics.DecActiveWorkers("fetch")

	release, err := p.politeness.Acquire(ctx, task.Source.Domain)
	if err != nil {
		return
	}
	doc, err := p.fetcher.Fetch(ctx, task.Source, task.URL)
	release()
	if err != nil {
		p.telemetry.RecordFailure(ctx, task.Source, content.IsTransientFetch(err))
		p.logger.Warn("fetch failed",
			zap.String("url", task.URL),
			zap.String("source", task.Source.ID),
			zap.Error(err),
		)
		p.resolve(ctx, task, false)
		return
	}
	p.telemetry.RecordSuccess(ctx, task.Source, doc.Duration)
	doc.JobID = task.JobID

	select {
	case docs <- fetched{task: task, doc: doc}:
	case <-ctx.Done():
	}
}

func (p *Pipeline) processLoop(ctx context.Context, docs <-chan fetched) {
	for f := range docs {
		p.processOne(ctx, f)
	}
}

func (p *Pipeline) processOne(ctx context.Context, f fetched) {
	metrics.IncActiveWorkers("process")
	defer metrics.DecActiveWorkers("process")

	if guess, gerr := extract.ResolveCanonical("", f.doc.URL); gerr == nil {
		if prev, ok, _ := p.items.GetByCanonicalURL(ctx, guess); ok &&
			prev.ExtractionStatus == content.ExtractionFailed &&
			prev.RetryCount >= p.opts.MaxExtractRetries {
			p.resolve(ctx, f.task, false)
			return
		}
	}

	item, err := p.extractor.Extract(f.doc, f.task.Source)
	if err != nil {
		metrics.ObserveExtraction("failed")
		p.logger.Debug("extraction failed", zap.String("url", f.doc.URL), zap.Error(err))
		p.recordExtractionFailure(ctx, f, err)
		p.resolve(ctx, f.task, false)
		return
	}
	metrics.ObserveExtraction("extracted")

	// A re-crawled canonical URL refreshes the existing record instead of
	// minting a second one.
	if prev, ok, gerr := p.items.GetByCanonicalURL(ctx, item.CanonicalURL); gerr == nil && ok {
		item.ID = prev.ID
		item.CreatedAt = prev.CreatedAt
	}

	source := f.task.Source
	degraded := false
	if fresh, serr := p.sources.Get(ctx, source.ID); serr == nil {
		source = fresh
	} else {
		degraded = true
		p.logger.Warn("source lookup failed, scoring degraded",
			zap.String("source", f.task.Source.ID),
			zap.Error(serr),
		)
	}

	decision := p.index.Observe(item, source.Reputation)
	switch decision.Kind {
	case dedup.ExactDuplicate, dedup.NearDuplicate:
		// The new item may itself be elected representative, in which case
		// the previous one is demoted instead.
		if decision.CanonicalID != item.ID {
			item.IsDuplicate = true
			item.DuplicateOf = decision.CanonicalID
			metrics.ObserveDuplicate(string(decision.Kind))
		}
	}
	if decision.SupersededID != "" && decision.SupersededID != item.ID {
		p.supersede(ctx, decision.SupersededID, item.ID)
	}

	if degraded {
		p.scorer.ScoreDegraded(&item)
	} else {
		p.scorer.Score(&item, source)
	}
	if item.IsSpam {
		metrics.ObserveSpam()
	}

	if err := p.items.Upsert(ctx, item); err != nil {
		p.logger.Error("persist item failed", zap.String("id", item.ID), zap.Error(err))
		p.resolve(ctx, f.task, false)
		return
	}

	if !item.IsDuplicate && !item.IsSpam {
		p.detector.Observe(item)
		if err := p.engine.Index(ctx, item); err != nil {
			p.logger.Error("index item failed", zap.String("id", item.ID), zap.Error(err))
			p.resolve(ctx, f.task, false)
			return
		}
		p.scheduleSummary(ctx, item)
	}

	p.resolve(ctx, f.task, true)
}

// recordExtractionFailure keeps a failed record per URL so repeated crawls
// stop re-extracting once the retry cap is reached, with the last error
// preserved for reprocessing tools.
func (p *Pipeline) recordExtractionFailure(ctx context.Context, f fetched, extractErr error) {
	canonical, err := extract.ResolveCanonical("", f.doc.URL)
	if err != nil {
		return
	}
	item, ok, err := p.items.GetByCanonicalURL(ctx, canonical)
	if err != nil {
		p.logger.Warn("failure record lookup", zap.String("url", f.doc.URL), zap.Error(err))
		return
	}
	if !ok {
		item = content.ContentItem{
			ID:           p.idGen.NewID(),
			SourceID:     f.task.Source.ID,
			SourceDomain: f.task.Source.Domain,
			OriginalURL:  f.doc.URL,
			CanonicalURL: canonical,
			CreatedAt:    p.clock.Now(),
		}
	}
	if item.RetryCount >= p.opts.MaxExtractRetries {
		return
	}
	item.RetryCount++
	item.LastError = extractErr.Error()
	item.ExtractionStatus = content.ExtractionFailed
	item.IsActive = false
	if err := p.items.Upsert(ctx, item); err != nil {
		p.logger.Warn("persist failure record", zap.String("url", f.doc.URL), zap.Error(err))
	}
}

// supersede demotes a previously canonical item after a duplicate cluster
// elects an earlier-published representative.
func (p *Pipeline) supersede(ctx context.Context, oldID, newID string) {
	old, ok, err := p.items.Get(ctx, oldID)
	if err != nil || !ok {
		p.logger.Warn("superseded item not found", zap.String("id", oldID), zap.Error(err))
		return
	}
	old.IsDuplicate = true
	old.DuplicateOf = newID
	if err := p.items.Upsert(ctx, old); err != nil {
		p.logger.Error("demote superseded item failed", zap.String("id", oldID), zap.Error(err))
		return
	}
	if err := p.engine.Remove(ctx, oldID); err != nil {
		p.logger.Warn("remove superseded item from index failed", zap.String("id", oldID), zap.Error(err))
	}
	metrics.ObserveDuplicate("superseded")
}

// scheduleSummary requests a summary off the hot path. Indexing never waits
// on the summarizer, and its failures only log.
func (p *Pipeline) scheduleSummary(ctx context.Context, item content.ContentItem) {
	p.summWG.Add(1)
	go func() {
		defer p.summWG.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.SummarizeTimeout)
		defer cancel()

		summary, err := p.summarizer.Summarize(sctx, item)
		if err != nil {
			p.logger.Debug("summarize failed", zap.String("id", item.ID), zap.Error(err))
			return
		}
		stored, ok, err := p.items.Get(sctx, item.ID)
		if err != nil || !ok {
			return
		}
		stored.Summary = summary.Text
		stored.SummaryConfidence = summary.Confidence
		if err := p.items.Upsert(sctx, stored); err != nil {
			p.logger.Warn("persist summary failed", zap.String("id", item.ID), zap.Error(err))
		}
	}()
}

// resolve bumps the owning job's counters and completes the job once every
// discovered item has resolved.
func (p *Pipeline) resolve(ctx context.Context, task scheduler.Task, succeeded bool) {
	if task.JobID == "" {
		return
	}
	p.jobMu.Lock()
	defer p.jobMu.Unlock()

	job, err := p.jobs.Get(ctx, task.JobID)
	if err != nil {
		p.logger.Warn("job lookup failed", zap.String("job", task.JobID), zap.Error(err))
		return
	}
	// In-flight tasks of a cancelled job drain without reopening the
	// terminal record.
	if job.Status.Terminal() {
		return
	}
	job.ItemsProcessed++
	if succeeded {
		job.ItemsSuccessful++
	} else {
		job.ItemsFailed++
	}
	if job.ItemsProcessed >= int64(task.JobItems) {
		job.Status = content.JobCompleted
		job.CompletedAt = p.clock.Now()
	}
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Warn("job update failed", zap.String("job", task.JobID), zap.Error(err))
	}
}

func (p *Pipeline) rolloverLoop(ctx context.Context) {
	ticker := time.NewTicker(p.detector.Window())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		terms := p.detector.Rollover(ctx)
		p.logger.Debug("trending window closed", zap.Int("terms", len(terms)))
	}
}
