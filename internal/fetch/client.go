// Package fetch retrieves individual documents over HTTP with bounded
// retries and archives the raw payloads.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/metrics"
	"github.com/CornerLeague/Corner-League-Bot/internal/scheduler"
)

// Options configures the fetch client.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxAttempts  int
	MaxBodyBytes int
	Backoff      scheduler.Backoff
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = "corner-league-bot/1.0"
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 5 << 20
	}
	return o
}

// Client fetches single URLs. Politeness and robots policy are the
// scheduler's responsibility; the client handles transport, retries on
// transient failures, and archival.
type Client struct {
	opts   Options
	blob   content.BlobStore
	clock  content.Clock
	logger *zap.Logger
}

// NewClient builds a fetch client. blob may be nil to disable archival.
func NewClient(opts Options, blob content.BlobStore, clock content.Clock, logger *zap.Logger) *Client {
	return &Client{opts: opts.withDefaults(), blob: blob, clock: clock, logger: logger}
}

// Fetch retrieves one URL. Transient failures (429, 5xx, transport errors)
// are retried with jittered exponential backoff, honoring Retry-After;
// permanent failures (most 4xx) return immediately. Successful payloads are
// archived before returning; archival failure is logged but not fatal.
func (c *Client) Fetch(ctx context.Context, source content.Source, url string) (content.RawDocument, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return content.RawDocument{}, err
		}

		doc, err := c.fetchOnce(source, url)
		if err == nil {
			metrics.ObserveFetch(source.Domain, "success", doc.Duration)
			c.archive(ctx, source, &doc)
			return doc, nil
		}
		lastErr = err

		if content.IsPermanentFetch(err) {
			metrics.ObserveFetch(source.Domain, "permanent", 0)
			return content.RawDocument{}, err
		}
		metrics.ObserveFetch(source.Domain, "transient", 0)
		if attempt == c.opts.MaxAttempts {
			break
		}

		delay := c.opts.Backoff.RetryAfter(retryHint(err), attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return content.RawDocument{}, ctx.Err()
		}
	}
	return content.RawDocument{}, fmt.Errorf("fetch %s: attempts exhausted: %w", url, lastErr)
}

// fetchOnce performs a single HTTP exchange through a fresh collector.
func (c *Client) fetchOnce(source content.Source, url string) (content.RawDocument, error) {
	collector := colly.NewCollector(
		colly.UserAgent(c.opts.UserAgent),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(c.opts.MaxBodyBytes),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(c.opts.Timeout)

	var doc content.RawDocument
	var fetchErr error
	start := c.clock.Now()

	collector.OnResponse(func(r *colly.Response) {
		doc = content.RawDocument{
			SourceID:    source.ID,
			URL:         url,
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Headers:     *r.Headers,
			Body:        r.Body,
			FetchedAt:   start,
			Duration:    c.clock.Now().Sub(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		var retryAfter time.Duration
		if r != nil {
			status = r.StatusCode
			if r.Headers != nil {
				retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"))
			}
		}
		fetchErr = classify(url, status, retryAfter, err)
	})

	visitErr := collector.Visit(url)
	collector.Wait()

	// Visit reports an error for every non-2xx status; OnError has
	// already classified it, so fetchErr wins over the raw visit error.
	if fetchErr != nil {
		return content.RawDocument{}, fetchErr
	}
	if visitErr != nil {
		return content.RawDocument{}, content.NewTransientFetchError(url, 0, visitErr)
	}
	if doc.StatusCode == 0 {
		return content.RawDocument{}, content.NewTransientFetchError(url, 0, fmt.Errorf("no response"))
	}
	return doc, nil
}

func (c *Client) archive(ctx context.Context, source content.Source, doc *content.RawDocument) {
	if c.blob == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%d", source.Domain, doc.FetchedAt.UTC().Format("2006-01-02"), doc.FetchedAt.UnixNano())
	uri, err := c.blob.Put(ctx, path, doc.ContentType, doc.Body)
	if err != nil {
		c.logger.Warn("raw document archive failed",
			zap.String("url", doc.URL),
			zap.Error(err),
		)
		return
	}
	doc.ArchiveURI = uri
}

// retryHintError carries a server-provided Retry-After through the fetch
// error chain.
type retryHintError struct {
	err  error
	hint time.Duration
}

func (e *retryHintError) Error() string { return e.err.Error() }
func (e *retryHintError) Unwrap() error { return e.err }

func retryHint(err error) time.Duration {
	for err != nil {
		if hinted, ok := err.(*retryHintError); ok {
			return hinted.hint
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

// classify maps an HTTP exchange failure to a transient or permanent fetch
// error. Rate limiting and server errors are transient; client errors other
// than 408 and 429 are permanent.
func classify(url string, status int, retryAfter time.Duration, err error) error {
	switch {
	case status == 0:
		return content.NewTransientFetchError(url, 0, err)
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		transient := content.NewTransientFetchError(url, status, err)
		if retryAfter > 0 {
			return &retryHintError{err: transient, hint: retryAfter}
		}
		return transient
	case status >= 500:
		return content.NewTransientFetchError(url, status, err)
	default:
		return content.NewPermanentFetchError(url, status, err)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
