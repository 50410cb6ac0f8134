package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)}
}

func TestRobotsPolicyAllowsAndDenies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprintln(w, "User-agent: *\nDisallow: /private/")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(srv.Client(), "corner-league-bot/1.0", time.Hour, newStubClock(), zap.NewNop())
	ctx := context.Background()

	require.True(t, policy.Allowed(ctx, srv.URL+"/news/story"))
	require.False(t, policy.Allowed(ctx, srv.URL+"/private/draft"))
	require.False(t, policy.Allowed(ctx, "::not a url"))
}

func TestRobotsPolicyCachesUntilTTL(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			requests.Add(1)
			fmt.Fprintln(w, "User-agent: *\nAllow: /")
		}
	}))
	defer srv.Close()

	clock := newStubClock()
	policy := NewRobotsPolicy(srv.Client(), "corner-league-bot/1.0", time.Hour, clock, zap.NewNop())
	ctx := context.Background()

	policy.Allowed(ctx, srv.URL+"/a")
	policy.Allowed(ctx, srv.URL+"/b")
	require.Equal(t, int32(1), requests.Load(), "second check served from cache")

	clock.Advance(2 * time.Hour)
	policy.Allowed(ctx, srv.URL+"/c")
	require.Equal(t, int32(2), requests.Load(), "expired entry refetched")
}

func TestRobotsPolicyMissingFileAllowsAll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(srv.Client(), "corner-league-bot/1.0", time.Hour, newStubClock(), zap.NewNop())
	require.True(t, policy.Allowed(context.Background(), srv.URL+"/anything"))
}

func TestRobotsPolicyServerErrorDeniesAll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(srv.Client(), "corner-league-bot/1.0", time.Hour, newStubClock(), zap.NewNop())
	require.False(t, policy.Allowed(context.Background(), srv.URL+"/anything"))
}
