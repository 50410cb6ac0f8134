package rank

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/metrics"
)

// Engine fronts a ranking backend with index write retries and a bounded
// result cache. When the backend fails a search, the engine serves the last
// good page for the same query, marked FromCache, instead of failing the
// request.
type Engine struct {
	backend  Backend
	clock    content.Clock
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cachedResult
}

type cachedResult struct {
	result Result
	stored time.Time
}

// EngineOptions configures the engine.
type EngineOptions struct {
	// IndexAttempts is the number of tries per index write.
	IndexAttempts int
	// IndexBackoff is the pause between index attempts.
	IndexBackoff time.Duration
	// CacheTTL bounds how stale a fallback page may be.
	CacheTTL time.Duration
}

// NewEngine builds an Engine over the given backend.
func NewEngine(backend Backend, clock content.Clock, opts EngineOptions, logger *zap.Logger) *Engine {
	if opts.IndexAttempts < 1 {
		opts.IndexAttempts = 3
	}
	if opts.IndexBackoff <= 0 {
		opts.IndexBackoff = 250 * time.Millisecond
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Engine{
		backend:  backend,
		clock:    clock,
		logger:   logger,
		attempts: opts.IndexAttempts,
		backoff:  opts.IndexBackoff,
		cacheTTL: opts.CacheTTL,
		cache:    make(map[string]cachedResult),
	}
}

// Backend reports the active backend name.
func (e *Engine) Backend() string { return e.backend.Name() }

// Index writes an item to the backend, retrying transient failures.
func (e *Engine) Index(ctx context.Context, item content.ContentItem) error {
	var err error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if err = e.backend.Index(ctx, item); err == nil {
			metrics.ObserveIndexed(e.backend.Name())
			return nil
		}
		e.logger.Warn("index write failed",
			zap.String("item_id", item.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == e.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("index item %s after %d attempts: %w", item.ID, e.attempts, err)
}

// Remove drops an item from the backend.
func (e *Engine) Remove(ctx context.Context, id string) error {
	return e.backend.Remove(ctx, id)
}

// Search runs a ranked query. Successful pages refresh the fallback cache;
// on backend failure a fresh-enough cached page is served with FromCache
// set, and the error is returned only when no fallback exists.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	q.Now = e.clock.Now()
	key := queryHash(q) + "|" + q.Cursor

	result, err := e.backend.Search(ctx, q)
	if err == nil {
		metrics.ObserveQuery(e.backend.Name(), false)
		e.store(key, result)
		return result, nil
	}

	if cached, ok := e.load(key); ok {
		e.logger.Warn("serving cached results after backend failure",
			zap.String("backend", e.backend.Name()),
			zap.Error(err),
		)
		metrics.ObserveQuery(e.backend.Name(), true)
		cached.FromCache = true
		return cached, nil
	}
	return Result{}, err
}

func (e *Engine) store(key string, result Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[key] = cachedResult{result: result, stored: e.clock.Now()}
	// Opportunistic eviction keeps the cache from growing unbounded.
	if len(e.cache) > 1024 {
		cutoff := e.clock.Now().Add(-e.cacheTTL)
		for k, v := range e.cache {
			if v.stored.Before(cutoff) {
				delete(e.cache, k)
			}
		}
	}
}

func (e *Engine) load(key string) (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cached, ok := e.cache[key]
	if !ok || e.clock.Now().Sub(cached.stored) > e.cacheTTL {
		return Result{}, false
	}
	return cached.result, true
}
