package rank

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/extract"
)

// Memory is the in-process backend: a BM25 inverted index over title and
// body text. It serves as the reference ranking implementation and the
// default for single-node deployments and tests.
type Memory struct {
	params Params

	mu        sync.RWMutex
	docs      map[string]content.ContentItem
	postings  map[string]map[string]float64 // term -> docID -> weighted tf
	docLength map[string]float64
	totalLen  float64
}

// NewMemory builds an empty in-memory index.
func NewMemory(params Params) *Memory {
	return &Memory{
		params:    params,
		docs:      make(map[string]content.ContentItem),
		postings:  make(map[string]map[string]float64),
		docLength: make(map[string]float64),
	}
}

func (m *Memory) Name() string { return "memory" }

// Index adds or replaces a document. Title terms carry the configured boost
// over body terms.
func (m *Memory) Index(_ context.Context, item content.ContentItem) error {
	terms := make(map[string]float64)
	length := 0.0
	for _, t := range tokenize(item.Text) {
		terms[t]++
		length++
	}
	for _, t := range tokenize(item.Title) {
		terms[t] += m.params.TitleBoost
		length++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(item.ID)
	m.docs[item.ID] = item
	m.docLength[item.ID] = length
	m.totalLen += length
	for t, tf := range terms {
		posting, ok := m.postings[t]
		if !ok {
			posting = make(map[string]float64)
			m.postings[t] = posting
		}
		posting[item.ID] = tf
	}
	return nil
}

// Remove deletes a document from the index.
func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

func (m *Memory) removeLocked(id string) {
	if _, ok := m.docs[id]; !ok {
		return
	}
	delete(m.docs, id)
	m.totalLen -= m.docLength[id]
	delete(m.docLength, id)
	for t, posting := range m.postings {
		delete(posting, id)
		if len(posting) == 0 {
			delete(m.postings, t)
		}
	}
}

// Search ranks matching documents with BM25 blended with quality, freshness
// decay, and personalization. Ties order by publication time (newer first),
// then canonical URL.
func (m *Memory) Search(_ context.Context, q Query) (Result, error) {
	limit := m.params.clampLimit(q.Limit)
	hash := queryHash(q)

	var after *cursor
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor, hash)
		if err != nil {
			return Result{}, err
		}
		after = &c
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := tokenize(q.Text)
	textScores := m.bm25Locked(terms)

	hits := make([]Hit, 0, len(m.docs))
	for id, item := range m.docs {
		if !eligible(item, q) {
			continue
		}
		text := textScores[id]
		if len(terms) > 0 && text == 0 {
			continue
		}
		hits = append(hits, Hit{
			Item:      item,
			TextScore: text,
			Score:     m.params.combine(text, item, q.Profile, q.Now),
		})
	}

	if q.SortBy == SortRecent {
		sort.Slice(hits, func(i, j int) bool {
			pi, pj := hits[i].Item.PublishedAt, hits[j].Item.PublishedAt
			if !pi.Equal(pj) {
				return pi.After(pj)
			}
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].Item.CanonicalURL < hits[j].Item.CanonicalURL
		})
	} else {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			pi, pj := hits[i].Item.PublishedAt, hits[j].Item.PublishedAt
			if !pi.Equal(pj) {
				return pi.After(pj)
			}
			return hits[i].Item.CanonicalURL < hits[j].Item.CanonicalURL
		})
	}

	total := len(hits)
	start := 0
	if after != nil {
		for start < total && !pastCursor(hits[start], *after, q.SortBy) {
			start++
		}
	}
	end := start + limit
	if end > total {
		end = total
	}
	page := hits[start:end]

	result := Result{Hits: page, Total: total, Backend: m.Name()}
	if end < total && len(page) > 0 {
		last := page[len(page)-1]
		result.NextCursor = encodeCursor(cursorAfter(last.Score, last.Item.PublishedAt, last.Item.CanonicalURL, hash))
	}
	return result, nil
}

// pastCursor reports whether a hit sorts strictly after the cursor position
// under the query's order. Items indexed between pages that rank above the
// cursor are skipped rather than re-served.
func pastCursor(h Hit, c cursor, sortBy string) bool {
	cp := c.published()
	hp := h.Item.PublishedAt
	if sortBy == SortRecent {
		if !hp.Equal(cp) {
			return hp.Before(cp)
		}
		if h.Score != c.Score {
			return h.Score < c.Score
		}
		return h.Item.CanonicalURL > c.CanonicalURL
	}
	if h.Score != c.Score {
		return h.Score < c.Score
	}
	if !hp.Equal(cp) {
		return hp.Before(cp)
	}
	return h.Item.CanonicalURL > c.CanonicalURL
}

// bm25Locked scores every document containing at least one query term.
// Caller holds the read lock.
func (m *Memory) bm25Locked(terms []string) map[string]float64 {
	if len(terms) == 0 || len(m.docs) == 0 {
		return nil
	}
	n := float64(len(m.docs))
	avgLen := m.totalLen / n
	if avgLen == 0 {
		avgLen = 1
	}
	k1, b := m.params.BM25K1, m.params.BM25B

	scores := make(map[string]float64)
	for _, term := range terms {
		posting := m.postings[term]
		if len(posting) == 0 {
			continue
		}
		df := float64(len(posting))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for id, tf := range posting {
			norm := tf + k1*(1-b+b*m.docLength[id]/avgLen)
			scores[id] += idf * tf * (k1 + 1) / norm
		}
	}
	return scores
}

// eligible filters out items that must never rank: duplicates and
// inactive records, spam unless the query opts in, plus the query's
// sport and content type filters.
func eligible(item content.ContentItem, q Query) bool {
	if item.IsDuplicate || !item.IsActive {
		return false
	}
	if item.IsSpam && !q.IncludeSpam {
		return false
	}
	if len(q.Sports) > 0 && !containsAny(item.SportsKeywords, q.Sports) {
		return false
	}
	if len(q.Sources) > 0 && !containsFold(q.Sources, item.SourceDomain) {
		return false
	}
	if len(q.ContentTypes) > 0 && !containsFold(q.ContentTypes, item.ContentType) {
		return false
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// tokenize reuses the extraction text normalization so index and query
// terms agree.
func tokenize(text string) []string {
	normalized := extract.NormalizeText(text)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}
