package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 16, cfg.Crawler.FetchWorkers)
	require.True(t, cfg.Crawler.RespectRobots)
	require.Equal(t, 0.8, cfg.Dedup.SimilarityThreshold)
	require.Equal(t, "memory", cfg.Rank.Backend)
	require.Equal(t, 24*time.Hour, cfg.Rank.FreshnessHalfLife)
	require.Equal(t, 15*time.Minute, cfg.Trending.Window)
	require.Equal(t, 15*time.Second, cfg.HTTP.Timeout())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
crawler:
  fetch_workers: 4
  user_agent: test-agent/0.1
  respect_robots: false
dedup:
  similarity_threshold: 0.9
rank:
  backend: memory
  freshness_half_life: 12h
trending:
  trending_threshold: 2.5
  discovery_threshold: 4.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.FetchWorkers)
	require.Equal(t, "test-agent/0.1", cfg.Crawler.UserAgent)
	require.False(t, cfg.Crawler.RespectRobots)
	require.Equal(t, 0.9, cfg.Dedup.SimilarityThreshold)
	require.Equal(t, 12*time.Hour, cfg.Rank.FreshnessHalfLife)
	require.Equal(t, 2.5, cfg.Trending.TrendingThreshold)
	require.Equal(t, 2, cfg.Crawler.PerDomainMax, "unset keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CORNERBOT_SERVER_PORT", "7777")
	t.Setenv("CORNERBOT_RANK_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad backend": `
rank:
  backend: sqlite
`,
		"postgres without dsn": `
rank:
  backend: postgres
`,
		"elastic without addresses": `
rank:
  backend: elastic
`,
		"threshold out of range": `
dedup:
  similarity_threshold: 1.5
`,
		"discovery below trending": `
trending:
  trending_threshold: 5.0
  discovery_threshold: 3.0
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
