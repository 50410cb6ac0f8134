package scheduler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Task is one URL to fetch, tied to the ingestion job that discovered it.
// JobItems carries the job's total discovered count so downstream workers
// can detect job completion.
type Task struct {
	Source   content.Source
	JobID    string
	JobItems int
	URL      string
}

// Options tunes the scheduler loop.
type Options struct {
	// PollInterval is how often due sources are collected.
	PollInterval time.Duration
	// BatchSize caps sources started per poll.
	BatchSize int
	// QueueDepth bounds the task channel.
	QueueDepth int
	// RespectRobots disables fetching of robots-disallowed URLs.
	RespectRobots bool
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 256
	}
	return o
}

// Scheduler selects due sources, discovers their candidate URLs, and emits
// fetch tasks. Discovery seed queries from the trending detector jump the
// schedule for matching sources.
type Scheduler struct {
	opts       Options
	sources    content.SourceStore
	jobs       content.JobStore
	discoverer *Discoverer
	robots     *RobotsPolicy
	telemetry  *Telemetry
	seeds      content.DiscoveryQueue
	cancels    *Cancellations
	idGen      content.IDGenerator
	clock      content.Clock
	logger     *zap.Logger

	tasks chan Task
}

// New builds a Scheduler. seeds may be nil when the trending feedback loop
// is disabled.
func New(
	opts Options,
	sources content.SourceStore,
	jobs content.JobStore,
	discoverer *Discoverer,
	robots *RobotsPolicy,
	telemetry *Telemetry,
	seeds content.DiscoveryQueue,
	cancels *Cancellations,
	idGen content.IDGenerator,
	clock content.Clock,
	logger *zap.Logger,
) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		opts:       opts,
		sources:    sources,
		jobs:       jobs,
		discoverer: discoverer,
		robots:     robots,
		telemetry:  telemetry,
		seeds:      seeds,
		cancels:    cancels,
		idGen:      idGen,
		clock:      clock,
		logger:     logger,
		tasks:      make(chan Task, opts.QueueDepth),
	}
}

// Tasks is the stream of fetch tasks. It closes when Run returns.
func (s *Scheduler) Tasks() <-chan Task { return s.tasks }

// Run drives the scheduling loop until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.tasks)

	if s.seeds != nil {
		go s.consumeSeeds(ctx)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll starts one crawl round for every source that is due.
func (s *Scheduler) poll(ctx context.Context) {
	now := s.clock.Now()
	due, err := s.sources.ListDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		s.logger.Error("list due sources failed", zap.Error(err))
		return
	}
	for _, source := range due {
		if !source.Active {
			continue
		}
		// Degraded sources stretch their interval beyond what the store
		// considers due.
		if !source.LastCrawled.IsZero() && now.Sub(source.LastCrawled) < s.telemetry.Interval(source) {
			continue
		}
		s.startCrawl(ctx, source)
	}
}

// startCrawl discovers the source's URLs, records the ingestion job, and
// enqueues one task per allowed URL.
func (s *Scheduler) startCrawl(ctx context.Context, source content.Source) {
	urls := s.discoverer.Discover(ctx, source)
	if s.opts.RespectRobots {
		allowed := urls[:0]
		for _, u := range urls {
			if s.robots.Allowed(ctx, u) {
				allowed = append(allowed, u)
			} else {
				s.logger.Debug("robots disallowed", zap.String("url", u))
			}
		}
		urls = allowed
	}

	job := content.IngestionJob{
		ID:              s.idGen.NewID(),
		SourceID:        source.ID,
		Status:          content.JobRunning,
		ItemsDiscovered: int64(len(urls)),
		StartedAt:       s.clock.Now(),
	}
	if len(urls) == 0 {
		job.Status = content.JobCompleted
		job.CompletedAt = job.StartedAt
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error("create job failed",
			zap.String("source_id", source.ID),
			zap.Error(err),
		)
		return
	}
	if len(urls) == 0 {
		return
	}

	s.logger.Info("crawl started",
		zap.String("source_id", source.ID),
		zap.String("job_id", job.ID),
		zap.Int("urls", len(urls)),
	)

	for _, u := range urls {
		if s.cancels != nil && s.cancels.Cancelled(job.ID) {
			s.logger.Info("crawl cancelled, dropping remaining tasks",
				zap.String("job_id", job.ID),
			)
			return
		}
		select {
		case s.tasks <- Task{Source: source, JobID: job.ID, JobItems: len(urls), URL: u}:
		case <-ctx.Done():
			return
		}
	}
}

// consumeSeeds pulls discovery seed queries and immediately schedules the
// sources whose focus matches the bursting term, ignoring due times.
func (s *Scheduler) consumeSeeds(ctx context.Context) {
	for {
		seed, err := s.seeds.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("seed dequeue failed", zap.Error(err))
			continue
		}
		s.logger.Info("seed query received",
			zap.String("term", seed.Term),
			zap.Float64("burst_score", seed.BurstScore),
		)

		// A large horizon returns the whole registry, not just due rows.
		sources, err := s.sources.ListDue(ctx, s.clock.Now().Add(365*24*time.Hour), 0)
		if err != nil {
			s.logger.Error("list sources for seed failed", zap.Error(err))
			continue
		}
		for _, source := range sources {
			if source.Active && matchesSeed(source, seed) {
				s.startCrawl(ctx, source)
			}
		}
	}
}

// matchesSeed reports whether a source plausibly covers the seed term.
func matchesSeed(source content.Source, seed content.SeedQuery) bool {
	term := strings.ToLower(seed.Term)
	for _, focus := range source.SportsFocus {
		f := strings.ToLower(focus)
		if strings.Contains(term, f) || strings.Contains(f, term) {
			return true
		}
	}
	return source.QualityTier == content.TierDiscovery
}
