package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Elastic ranks with an Elasticsearch cluster. Text relevance comes from a
// multi_match with the title boost; a script_score folds in quality and
// freshness with the same blend shape the other backends use.
// Personalization re-ranks within the fetched page, the same contract as
// the Postgres backend.
type Elastic struct {
	client *elasticsearch.Client
	index  string
	params Params
	logger *zap.Logger
}

// NewElastic builds the Elasticsearch backend over an existing client.
func NewElastic(client *elasticsearch.Client, index string, params Params, logger *zap.Logger) *Elastic {
	if index == "" {
		index = "content-items"
	}
	return &Elastic{client: client, index: index, params: params, logger: logger}
}

func (e *Elastic) Name() string { return "elastic" }

// Index writes the item document, replacing any previous version.
func (e *Elastic) Index(ctx context.Context, item content.ContentItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.ID, err)
	}
	res, err := e.client.Index(
		e.index,
		bytes.NewReader(payload),
		e.client.Index.WithDocumentID(item.ID),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index item %s: %w", item.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index item %s: %s", item.ID, res.String())
	}
	return nil
}

// Remove deletes the item document. A missing document is not an error.
func (e *Elastic) Remove(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.index, id, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete item %s: %s", id, res.String())
	}
	return nil
}

type esHit struct {
	Score  float64             `json:"_score"`
	Source content.ContentItem `json:"_source"`
}

type esResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// Search runs the ranked query.
func (e *Elastic) Search(ctx context.Context, q Query) (Result, error) {
	limit := e.params.clampLimit(q.Limit)
	hash := queryHash(q)

	var after *cursor
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor, hash)
		if err != nil {
			return Result{}, err
		}
		after = &c
	}

	body, err := e.buildQuery(q, after, limit)
	if err != nil {
		return Result{}, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return Result{}, fmt.Errorf("search: status %d: %s", res.StatusCode, msg)
	}

	var parsed esResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	var last cursor
	for _, h := range parsed.Hits.Hits {
		// The cursor records cluster sort values before the
		// personalization re-rank.
		last = cursorAfter(h.Score, h.Source.PublishedAt, h.Source.CanonicalURL, hash)
		hits = append(hits, Hit{
			Item:  h.Source,
			Score: h.Score + e.params.personal(h.Source, q.Profile),
		})
	}
	if q.Profile != nil {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}

	result := Result{Hits: hits, Total: parsed.Hits.Total.Value, Backend: e.Name()}
	if len(hits) == limit && limit > 0 {
		result.NextCursor = encodeCursor(last)
	}
	return result, nil
}

func (e *Elastic) buildQuery(q Query, after *cursor, limit int) ([]byte, error) {
	filters := []map[string]any{
		{"term": map[string]any{"is_active": true}},
		{"term": map[string]any{"is_duplicate": false}},
	}
	if !q.IncludeSpam {
		filters = append(filters, map[string]any{
			"term": map[string]any{"is_spam": false},
		})
	}
	if len(q.Sports) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"sports_keywords": q.Sports},
		})
	}
	if len(q.Sources) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"source_domain": q.Sources},
		})
	}
	if len(q.ContentTypes) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"content_type": q.ContentTypes},
		})
	}

	var match map[string]any
	if q.Text != "" {
		match = map[string]any{
			"multi_match": map[string]any{
				"query": q.Text,
				"fields": []string{
					fmt.Sprintf("title^%g", e.params.TitleBoost),
					"text",
				},
			},
		}
	} else {
		match = map[string]any{"match_all": map[string]any{}}
	}

	halfLife := e.params.FreshnessHalfLife
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Same blend shape as the other backends: text relevance squashed
	// into [0, 1), plus weighted quality and half-life freshness decay.
	script := map[string]any{
		"source": "double rel = _score / (_score + 1);" +
			" double quality = doc['quality_score'].size() == 0 ? 0 : doc['quality_score'].value;" +
			" double fresh = doc['published_at'].size() == 0 ? 0 : decayDateExp(params.origin, params.scale, '0', 0.5, doc['published_at'].value);" +
			" return rel + params.qw * quality + params.fw * fresh;",
		"params": map[string]any{
			"origin": now.Format(time.RFC3339),
			"scale":  halfLife.String(),
			"qw":     e.params.QualityWeight,
			"fw":     e.params.FreshnessWeight,
		},
	}

	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{
					"bool": map[string]any{
						"must":   []map[string]any{match},
						"filter": filters,
					},
				},
				"script": script,
			},
		},
		"sort": []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"published_at": map[string]any{"order": "desc", "missing": "_last"}},
			map[string]any{"canonical_url.keyword": map[string]any{"order": "asc"}},
		},
	}
	if q.SortBy == SortRecent {
		body["sort"] = []any{
			map[string]any{"published_at": map[string]any{"order": "desc", "missing": "_last"}},
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"canonical_url.keyword": map[string]any{"order": "asc"}},
		}
	}
	if after != nil {
		// search_after values follow the sort field order; dates are
		// epoch millis on the wire.
		pub := int64(0)
		if p := after.published(); !p.IsZero() {
			pub = p.UnixMilli()
		}
		if q.SortBy == SortRecent {
			body["search_after"] = []any{pub, after.Score, after.CanonicalURL}
		} else {
			body["search_after"] = []any{after.Score, pub, after.CanonicalURL}
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("build search body: %w", err)
	}
	return payload, nil
}
