package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// RobotsPolicy caches parsed robots.txt files per host and answers
// allow/deny for candidate URLs. Entries refresh after the TTL. Missing
// robots files and transport errors read as allow-all; 5xx responses read
// as deny-all until the entry refreshes.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	clock     content.Clock
	logger    *zap.Logger

	mu    sync.Mutex
	hosts map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsPolicy builds the cache.
func NewRobotsPolicy(client *http.Client, userAgent string, ttl time.Duration, clock content.Clock, logger *zap.Logger) *RobotsPolicy {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		clock:     clock,
		logger:    logger,
		hosts:     map[string]*robotsEntry{},
	}
}

// Allowed reports whether the URL may be fetched under the host's
// robots.txt. An unparseable target URL is denied.
func (r *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	data := r.robots(ctx, u.Scheme, u.Host)
	if data == nil {
		return true
	}
	// TestAgent, not FindGroup: the deny-all flag a 5xx robots response
	// sets lives on RobotsData and is only consulted by TestAgent.
	return data.TestAgent(u.Path, r.userAgent)
}

func (r *RobotsPolicy) robots(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	now := r.clock.Now()

	r.mu.Lock()
	entry, ok := r.hosts[host]
	if ok && now.Sub(entry.fetchedAt) < r.ttl {
		r.mu.Unlock()
		return entry.data
	}
	r.mu.Unlock()

	data := r.fetch(ctx, scheme, host)

	r.mu.Lock()
	r.hosts[host] = &robotsEntry{data: data, fetchedAt: now}
	r.mu.Unlock()
	return data
}

// fetch retrieves and parses robots.txt. Any failure yields nil, which
// Allowed treats as allow-all.
func (r *RobotsPolicy) fetch(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("robots fetch failed", zap.String("host", host), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Debug("robots parse failed", zap.String("host", host), zap.Error(err))
		return nil
	}
	return robots
}
