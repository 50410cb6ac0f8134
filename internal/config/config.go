// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Rank      RankConfig      `mapstructure:"rank"`
	Trending  TrendingConfig  `mapstructure:"trending"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Elastic   ElasticConfig   `mapstructure:"elastic"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the fetch scheduler and pipeline worker pools.
type CrawlerConfig struct {
	FetchWorkers          int    `mapstructure:"fetch_workers"`
	ExtractWorkers        int    `mapstructure:"extract_workers"`
	PerDomainMax          int    `mapstructure:"per_domain_max"`
	GlobalMax             int    `mapstructure:"global_max"`
	UserAgent             string `mapstructure:"user_agent"`
	DefaultRPS            float64 `mapstructure:"default_rps"`
	RespectRobots         bool   `mapstructure:"respect_robots"`
	PolicyRefreshMinutes  int    `mapstructure:"policy_refresh_minutes"`
	QueueDepth            int    `mapstructure:"queue_depth"`
	MaxFetchAttempts      int    `mapstructure:"max_fetch_attempts"`
	DegradeAfterFailures  int    `mapstructure:"degrade_after_failures"`
	DegradedIntervalScale int    `mapstructure:"degraded_interval_scale"`
	TelemetryAlpha        float64 `mapstructure:"telemetry_alpha"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxContentBytes  int `mapstructure:"max_content_bytes"`
}

// DedupConfig controls near-duplicate detection.
type DedupConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	WindowSize          int     `mapstructure:"window_size"`
	Shards              int     `mapstructure:"shards"`
	MaxExtractRetries   int     `mapstructure:"max_extract_retries"`
}

// QualityConfig holds quality signal weights and the spam cutoff.
type QualityConfig struct {
	SpamCutoff       float64 `mapstructure:"spam_cutoff"`
	ReputationWeight float64 `mapstructure:"reputation_weight"`
	ConfidenceWeight float64 `mapstructure:"confidence_weight"`
	DepthWeight      float64 `mapstructure:"depth_weight"`
	TitleWeight      float64 `mapstructure:"title_weight"`
	RelevanceWeight  float64 `mapstructure:"relevance_weight"`
	StructureWeight  float64 `mapstructure:"structure_weight"`
	DegradedDefault  float64 `mapstructure:"degraded_default"`
}

// RankConfig selects the ranking backend and its scoring constants.
type RankConfig struct {
	Backend            string  `mapstructure:"backend"` // memory, postgres, elastic
	BM25K1             float64 `mapstructure:"bm25_k1"`
	BM25B              float64 `mapstructure:"bm25_b"`
	TitleBoost         float64 `mapstructure:"title_boost"`
	QualityWeight      float64 `mapstructure:"quality_weight"`
	FreshnessWeight    float64 `mapstructure:"freshness_weight"`
	FreshnessHalfLife  time.Duration `mapstructure:"freshness_half_life"`
	PersonalBoost      float64 `mapstructure:"personal_boost"`
	MaxLimit           int     `mapstructure:"max_limit"`
}

// TrendingConfig controls burst detection and the discovery feedback loop.
type TrendingConfig struct {
	Window             time.Duration `mapstructure:"window"`
	BaselineAlpha      float64       `mapstructure:"baseline_alpha"`
	TrendingThreshold  float64       `mapstructure:"trending_threshold"`
	DiscoveryThreshold float64       `mapstructure:"discovery_threshold"`
	MinOccurrences     int           `mapstructure:"min_occurrences"`
	MaxTerms           int           `mapstructure:"max_terms"`
	SeedQueueDepth     int           `mapstructure:"seed_queue_depth"`
}

// StorageConfig sets the raw document archive destination.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // memory, gcs
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds the discovery seed queue topic metadata.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// ElasticConfig configures the clustered search backend.
type ElasticConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// SummarizeConfig points at the external summarization service.
type SummarizeConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls the root logger.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CORNERBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("crawler.fetch_workers", 16)
	v.SetDefault("crawler.extract_workers", 8)
	v.SetDefault("crawler.per_domain_max", 2)
	v.SetDefault("crawler.global_max", 32)
	v.SetDefault("crawler.user_agent", "corner-league-bot/1.0")
	v.SetDefault("crawler.default_rps", 1.0)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.policy_refresh_minutes", 60)
	v.SetDefault("crawler.queue_depth", 256)
	v.SetDefault("crawler.max_fetch_attempts", 3)
	v.SetDefault("crawler.degrade_after_failures", 3)
	v.SetDefault("crawler.degraded_interval_scale", 4)
	v.SetDefault("crawler.telemetry_alpha", 0.3)

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.max_content_bytes", 5<<20)

	v.SetDefault("dedup.similarity_threshold", 0.8)
	v.SetDefault("dedup.window_size", 4096)
	v.SetDefault("dedup.shards", 16)
	v.SetDefault("dedup.max_extract_retries", 3)

	v.SetDefault("quality.spam_cutoff", 0.3)
	v.SetDefault("quality.reputation_weight", 0.25)
	v.SetDefault("quality.confidence_weight", 0.15)
	v.SetDefault("quality.depth_weight", 0.20)
	v.SetDefault("quality.title_weight", 0.15)
	v.SetDefault("quality.relevance_weight", 0.15)
	v.SetDefault("quality.structure_weight", 0.10)
	v.SetDefault("quality.degraded_default", 0.4)

	v.SetDefault("rank.backend", "memory")
	v.SetDefault("rank.bm25_k1", 1.2)
	v.SetDefault("rank.bm25_b", 0.75)
	v.SetDefault("rank.title_boost", 3.0)
	v.SetDefault("rank.quality_weight", 0.3)
	v.SetDefault("rank.freshness_weight", 0.2)
	v.SetDefault("rank.freshness_half_life", 24*time.Hour)
	v.SetDefault("rank.personal_boost", 0.1)
	v.SetDefault("rank.max_limit", 100)

	v.SetDefault("trending.window", 15*time.Minute)
	v.SetDefault("trending.baseline_alpha", 0.2)
	v.SetDefault("trending.trending_threshold", 3.0)
	v.SetDefault("trending.discovery_threshold", 5.0)
	v.SetDefault("trending.min_occurrences", 3)
	v.SetDefault("trending.max_terms", 5000)
	v.SetDefault("trending.seed_queue_depth", 128)

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "raw")

	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)

	v.SetDefault("elastic.index", "content-items")

	v.SetDefault("summarize.timeout_seconds", 10)

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.FetchWorkers <= 0 {
		return fmt.Errorf("crawler.fetch_workers must be > 0")
	}
	if c.Crawler.PerDomainMax <= 0 {
		return fmt.Errorf("crawler.per_domain_max must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0,1]")
	}
	if c.Quality.SpamCutoff < 0 || c.Quality.SpamCutoff > 1 {
		return fmt.Errorf("quality.spam_cutoff must be in [0,1]")
	}
	switch c.Rank.Backend {
	case "memory", "postgres", "elastic":
	default:
		return fmt.Errorf("rank.backend must be one of memory, postgres, elastic")
	}
	if c.Rank.Backend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when rank.backend is postgres")
	}
	if c.Rank.Backend == "elastic" && len(c.Elastic.Addresses) == 0 {
		return fmt.Errorf("elastic.addresses must be set when rank.backend is elastic")
	}
	if c.Trending.DiscoveryThreshold < c.Trending.TrendingThreshold {
		return fmt.Errorf("trending.discovery_threshold must be >= trending.trending_threshold")
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
