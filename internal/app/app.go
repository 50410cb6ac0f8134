// Package app initializes and holds the long-lived services, acting as the
// dependency injection container for the commands.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/api"
	"github.com/CornerLeague/Corner-League-Bot/internal/blobstore"
	"github.com/CornerLeague/Corner-League-Bot/internal/clock/system"
	"github.com/CornerLeague/Corner-League-Bot/internal/config"
	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/dedup"
	"github.com/CornerLeague/Corner-League-Bot/internal/extract"
	"github.com/CornerLeague/Corner-League-Bot/internal/fetch"
	"github.com/CornerLeague/Corner-League-Bot/internal/id"
	"github.com/CornerLeague/Corner-League-Bot/internal/pipeline"
	"github.com/CornerLeague/Corner-League-Bot/internal/quality"
	"github.com/CornerLeague/Corner-League-Bot/internal/queue"
	"github.com/CornerLeague/Corner-League-Bot/internal/rank"
	"github.com/CornerLeague/Corner-League-Bot/internal/scheduler"
	"github.com/CornerLeague/Corner-League-Bot/internal/store"
	"github.com/CornerLeague/Corner-League-Bot/internal/summarize"
	"github.com/CornerLeague/Corner-League-Bot/internal/trending"
)

// App holds the shared, long-lived services. It is initialized once at
// startup and fails fast when a critical service cannot be built.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger
	Clock  content.Clock
	IDGen  content.IDGenerator

	Sources content.SourceStore
	Items   content.ContentStore
	Jobs    content.JobStore
	Blob    content.BlobStore
	Seeds   content.DiscoveryQueue

	Engine   *rank.Engine
	Detector *trending.Detector
	Dedup    *dedup.Index
	Scorer   *quality.Scorer

	Scheduler *scheduler.Scheduler
	Pipeline  *pipeline.Pipeline
	API       *api.Server
	Cancels   *scheduler.Cancellations

	pool   *pgxpool.Pool
	pubsub *gcpubsub.Client
	gcs    *gcstorage.Client
	seedsQ *queue.PubSub
	ready  bool
}

// New builds the full service graph from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Clock:  system.New(),
		IDGen:  id.UUID{},
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initBlob(ctx); err != nil {
		return nil, err
	}
	if err := a.initSeedQueue(ctx); err != nil {
		return nil, err
	}
	if err := a.initRank(); err != nil {
		return nil, err
	}
	a.initPipeline()

	a.ready = true
	logger.Info("application services initialized",
		zap.String("rank_backend", cfg.Rank.Backend),
		zap.String("storage_provider", cfg.Storage.Provider),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.Cfg.DB.DSN == "" {
		a.Logger.Info("no database configured, using in-memory stores")
		a.Sources = store.NewMemorySourceStore()
		a.Items = store.NewMemoryContentStore()
		a.Jobs = store.NewMemoryJobStore()
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(a.Cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("parse db dsn: %w", err)
	}
	poolCfg.MaxConns = a.Cfg.DB.MaxConns
	poolCfg.MinConns = a.Cfg.DB.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	a.pool = pool
	a.Sources = store.NewSourceStore(pool)
	a.Items = store.NewContentStore(pool)
	a.Jobs = store.NewJobStore(pool)
	return nil
}

func (a *App) initBlob(ctx context.Context) error {
	switch a.Cfg.Storage.Provider {
	case "", "memory":
		a.Blob = blobstore.NewMemory(a.Cfg.Storage.Prefix)
		return nil
	case "gcs":
		if a.Cfg.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcs = client
		a.Blob = blobstore.NewGCS(client, a.Cfg.Storage.GCSBucket, a.Cfg.Storage.Prefix)
		return nil
	default:
		return fmt.Errorf("unknown storage provider %q", a.Cfg.Storage.Provider)
	}
}

func (a *App) initSeedQueue(ctx context.Context) error {
	if a.Cfg.PubSub.ProjectID == "" {
		a.Seeds = queue.NewMemory(a.Cfg.Trending.SeedQueueDepth)
		return nil
	}
	client, err := gcpubsub.NewClient(ctx, a.Cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.pubsub = client
	a.seedsQ = queue.NewPubSub(client, a.Cfg.PubSub.Topic, a.Cfg.PubSub.Subscription, a.Logger)
	a.Seeds = a.seedsQ
	return nil
}

func (a *App) rankParams() rank.Params {
	return rank.Params{
		BM25K1:            a.Cfg.Rank.BM25K1,
		BM25B:             a.Cfg.Rank.BM25B,
		TitleBoost:        a.Cfg.Rank.TitleBoost,
		QualityWeight:     a.Cfg.Rank.QualityWeight,
		FreshnessWeight:   a.Cfg.Rank.FreshnessWeight,
		FreshnessHalfLife: a.Cfg.Rank.FreshnessHalfLife,
		PersonalBoost:     a.Cfg.Rank.PersonalBoost,
		MaxLimit:          a.Cfg.Rank.MaxLimit,
	}
}

func (a *App) initRank() error {
	params := a.rankParams()

	var backend rank.Backend
	switch a.Cfg.Rank.Backend {
	case "memory":
		backend = rank.NewMemory(params)
	case "postgres":
		if a.pool == nil {
			return fmt.Errorf("rank.backend postgres requires db.dsn")
		}
		backend = rank.NewPostgres(a.pool, params, a.Logger)
	case "elastic":
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: a.Cfg.Elastic.Addresses,
			Username:  a.Cfg.Elastic.Username,
			Password:  a.Cfg.Elastic.Password,
		})
		if err != nil {
			return fmt.Errorf("init elasticsearch client: %w", err)
		}
		backend = rank.NewElastic(client, a.Cfg.Elastic.Index, params, a.Logger)
	default:
		return fmt.Errorf("unknown rank backend %q", a.Cfg.Rank.Backend)
	}

	a.Engine = rank.NewEngine(backend, a.Clock, rank.EngineOptions{}, a.Logger)
	a.Detector = trending.NewDetector(trending.Options{
		Window:             a.Cfg.Trending.Window,
		BaselineAlpha:      a.Cfg.Trending.BaselineAlpha,
		TrendingThreshold:  a.Cfg.Trending.TrendingThreshold,
		DiscoveryThreshold: a.Cfg.Trending.DiscoveryThreshold,
		MinOccurrences:     a.Cfg.Trending.MinOccurrences,
		MaxTerms:           a.Cfg.Trending.MaxTerms,
	}, a.Clock, a.Seeds, a.Logger)
	return nil
}

func (a *App) initPipeline() {
	cfg := a.Cfg
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout()}

	telemetry := scheduler.NewTelemetry(
		a.Sources,
		cfg.Crawler.TelemetryAlpha,
		cfg.Crawler.DegradeAfterFailures,
		cfg.Crawler.DegradedIntervalScale,
		a.Clock,
		a.Logger,
	)
	robots := scheduler.NewRobotsPolicy(
		httpClient,
		cfg.Crawler.UserAgent,
		time.Duration(cfg.Crawler.PolicyRefreshMinutes)*time.Minute,
		a.Clock,
		a.Logger,
	)
	discoverer := scheduler.NewDiscoverer(httpClient, cfg.Crawler.UserAgent, a.Logger)

	a.Cancels = scheduler.NewCancellations()
	a.Scheduler = scheduler.New(
		scheduler.Options{
			QueueDepth:    cfg.Crawler.QueueDepth,
			RespectRobots: cfg.Crawler.RespectRobots,
		},
		a.Sources,
		a.Jobs,
		discoverer,
		robots,
		telemetry,
		a.Seeds,
		a.Cancels,
		a.IDGen,
		a.Clock,
		a.Logger,
	)

	backoff := scheduler.Backoff{
		Initial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		Max:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}
	fetcher := fetch.NewClient(fetch.Options{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.HTTP.Timeout(),
		MaxAttempts:  cfg.Crawler.MaxFetchAttempts,
		MaxBodyBytes: cfg.HTTP.MaxContentBytes,
		Backoff:      backoff,
	}, a.Blob, a.Clock, a.Logger)

	a.Dedup = dedup.NewIndex(dedup.Options{
		Shards:     cfg.Dedup.Shards,
		WindowSize: cfg.Dedup.WindowSize,
		Threshold:  cfg.Dedup.SimilarityThreshold,
	}, a.Logger)
	a.Scorer = quality.NewScorer(quality.Options{
		Weights: quality.Weights{
			Reputation: cfg.Quality.ReputationWeight,
			Confidence: cfg.Quality.ConfidenceWeight,
			Depth:      cfg.Quality.DepthWeight,
			Title:      cfg.Quality.TitleWeight,
			Relevance:  cfg.Quality.RelevanceWeight,
			Structure:  cfg.Quality.StructureWeight,
		},
		SpamCutoff:      cfg.Quality.SpamCutoff,
		DegradedDefault: cfg.Quality.DegradedDefault,
	}, a.Logger)

	var summarizer content.Summarizer
	if cfg.Summarize.Endpoint != "" {
		summarizer = summarize.NewHTTPClient(
			cfg.Summarize.Endpoint,
			time.Duration(cfg.Summarize.TimeoutSeconds)*time.Second,
			a.Logger,
		)
	} else {
		summarizer = summarize.NoOp{}
	}

	a.Pipeline = pipeline.New(
		pipeline.Options{
			FetchWorkers:      cfg.Crawler.FetchWorkers,
			ProcessWorkers:    cfg.Crawler.ExtractWorkers,
			QueueDepth:        cfg.Crawler.QueueDepth,
			MaxExtractRetries: cfg.Dedup.MaxExtractRetries,
		},
		a.Scheduler.Tasks(),
		fetcher,
		scheduler.NewPoliteness(cfg.Crawler.PerDomainMax, cfg.Crawler.GlobalMax, cfg.Crawler.DefaultRPS),
		telemetry,
		extract.New(a.Clock, a.IDGen, a.Logger),
		a.Dedup,
		a.Scorer,
		a.Engine,
		a.Detector,
		a.Items,
		a.Jobs,
		a.Sources,
		summarizer,
		a.Cancels,
		a.IDGen,
		a.Clock,
		a.Logger,
	)

	a.API = api.New(
		api.Options{},
		a.Engine,
		a.Detector,
		a.Jobs,
		a.Cancels,
		a.Clock,
		func() bool { return a.ready },
		a.Logger,
	)
}

// Close releases external connections. Safe to call once after the
// commands finish.
func (a *App) Close() {
	if a.seedsQ != nil {
		a.seedsQ.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.Logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Logger.Sync()
}
