package scheduler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Caps keep a single discovery pass bounded even against huge feeds.
const (
	maxURLsPerSource  = 200
	maxChildSitemaps  = 5
	maxSitemapPayload = 10 << 20
)

// Discoverer finds candidate article URLs for a source from its RSS feed
// and sitemap. Results are deduplicated and capped.
type Discoverer struct {
	client *http.Client
	feeds  *gofeed.Parser
	agent  string
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer sharing the given HTTP client.
func NewDiscoverer(client *http.Client, userAgent string, logger *zap.Logger) *Discoverer {
	feeds := gofeed.NewParser()
	feeds.Client = client
	feeds.UserAgent = userAgent
	return &Discoverer{client: client, feeds: feeds, agent: userAgent, logger: logger}
}

// Discover returns candidate URLs for the source. A source with neither
// feed nor sitemap yields just its base URL. Partial failures degrade to
// whatever channel worked.
func (d *Discoverer) Discover(ctx context.Context, source content.Source) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" || len(urls) >= maxURLsPerSource {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	if source.RSSURL != "" {
		for _, u := range d.fromFeed(ctx, source.RSSURL) {
			add(u)
		}
	}
	if source.SitemapURL != "" && len(urls) < maxURLsPerSource {
		for _, u := range d.fromSitemap(ctx, source.SitemapURL, true) {
			add(u)
		}
	}
	if len(urls) == 0 && source.BaseURL != "" {
		add(source.BaseURL)
	}

	d.logger.Debug("discovered urls",
		zap.String("source_id", source.ID),
		zap.Int("count", len(urls)),
	)
	return urls
}

func (d *Discoverer) fromFeed(ctx context.Context, feedURL string) []string {
	feed, err := d.feeds.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		d.logger.Warn("feed parse failed", zap.String("url", feedURL), zap.Error(err))
		return nil
	}
	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link != "" {
			urls = append(urls, item.Link)
		}
	}
	return urls
}

type sitemapURLSet struct {
	URLs []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// fromSitemap parses a sitemap or, when recurse is set, the first few
// children of a sitemap index.
func (d *Discoverer) fromSitemap(ctx context.Context, sitemapURL string, recurse bool) []string {
	body, err := d.get(ctx, sitemapURL)
	if err != nil {
		d.logger.Warn("sitemap fetch failed", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal(body, &urlset); err == nil && len(urlset.URLs) > 0 {
		urls := make([]string, 0, len(urlset.URLs))
		for _, u := range urlset.URLs {
			if u.Loc != "" {
				urls = append(urls, u.Loc)
			}
		}
		return urls
	}

	if !recurse {
		return nil
	}
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		d.logger.Warn("sitemap parse failed", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}
	var urls []string
	for i, child := range index.Sitemaps {
		if i >= maxChildSitemaps || len(urls) >= maxURLsPerSource {
			break
		}
		urls = append(urls, d.fromSitemap(ctx, child.Loc, false)...)
	}
	return urls
}

func (d *Discoverer) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.agent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapPayload))
}
