// Package extract turns raw fetched documents into canonical content
// records: URL canonicalization, field extraction, content hashing, and
// near-duplicate signatures.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Minimum extracted text length before a document counts as an article.
const minTextChars = 100

// Draft holds the raw fields pulled out of a document before the canonical
// record is assembled.
type Draft struct {
	Title        string
	Text         string
	Byline       string
	PublishedRaw string
	CanonicalRef string
	Language     string
}

// Strategy extracts a Draft from one kind of document. Strategies are
// selected by content type, not by inspecting the payload at runtime.
type Strategy interface {
	Name() string
	Matches(contentType string) bool
	Extract(raw content.RawDocument) (Draft, error)
}

// Extractor assembles ContentItems from raw documents using a fixed set of
// per-content-type strategies.
type Extractor struct {
	strategies []Strategy
	clock      content.Clock
	idGen      content.IDGenerator
	logger     *zap.Logger
}

// New builds an Extractor with the standard strategy set.
func New(clock content.Clock, idGen content.IDGenerator, logger *zap.Logger) *Extractor {
	return &Extractor{
		strategies: []Strategy{&htmlStrategy{}, &plainStrategy{}},
		clock:      clock,
		idGen:      idGen,
		logger:     logger,
	}
}

// Extract produces a canonical ContentItem or an ExtractionError. The
// content hash and signature are deterministic functions of the normalized
// text, so re-processing the same document is idempotent.
func (e *Extractor) Extract(raw content.RawDocument, source content.Source) (content.ContentItem, error) {
	strategy := e.pick(raw.ContentType)
	if strategy == nil {
		return content.ContentItem{}, &content.ExtractionError{
			URL:    raw.URL,
			Reason: fmt.Sprintf("unsupported content type %q", raw.ContentType),
		}
	}

	draft, err := strategy.Extract(raw)
	if err != nil {
		return content.ContentItem{}, &content.ExtractionError{URL: raw.URL, Reason: "parse document", Err: err}
	}
	if len(draft.Text) < minTextChars {
		return content.ContentItem{}, &content.ExtractionError{
			URL:    raw.URL,
			Reason: fmt.Sprintf("extracted text too short (%d chars)", len(draft.Text)),
		}
	}

	fetched := raw.FinalURL
	if fetched == "" {
		fetched = raw.URL
	}
	canonical, err := ResolveCanonical(draft.CanonicalRef, fetched)
	if err != nil {
		return content.ContentItem{}, &content.ExtractionError{URL: raw.URL, Reason: "canonicalize url", Err: err}
	}

	item := content.ContentItem{
		ID:               e.idGen.NewID(),
		SourceID:         source.ID,
		SourceDomain:     source.Domain,
		OriginalURL:      raw.URL,
		CanonicalURL:     canonical,
		Title:            cleanTitle(draft.Title),
		Text:             draft.Text,
		Byline:           draft.Byline,
		Language:         draft.Language,
		WordCount:        len(strings.Fields(draft.Text)),
		ExtractionStatus: content.ExtractionExtracted,
		IsActive:         true,
		CreatedAt:        e.clock.Now(),
	}
	item.ContentHash = ContentHash(item.Title, item.Text)
	item.Signature = MinHash(item.Title+" "+item.Text, NumPermutations)
	item.SportsKeywords = SportsKeywords(item.Title + " " + item.Text)
	item.ContentType = ClassifyContentType(item.Title, item.Text)

	if draft.PublishedRaw != "" {
		if ts, perr := dateparse.ParseAny(draft.PublishedRaw); perr == nil {
			item.PublishedAt = ts.UTC()
		} else {
			e.logger.Debug("unparseable publication date",
				zap.String("url", raw.URL),
				zap.String("value", draft.PublishedRaw),
			)
		}
	}

	item.Confidence = confidence(item)
	return item, nil
}

func (e *Extractor) pick(contentType string) Strategy {
	for _, s := range e.strategies {
		if s.Matches(contentType) {
			return s
		}
	}
	return nil
}

func confidence(item content.ContentItem) float64 {
	score := 0.4
	if item.Title != "" {
		score += 0.2
	}
	if !item.PublishedAt.IsZero() {
		score += 0.2
	}
	if item.Byline != "" {
		score += 0.1
	}
	if item.WordCount >= 150 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// cleanTitle collapses whitespace and drops a trailing site-name segment.
func cleanTitle(title string) string {
	title = strings.TrimSpace(whitespaceRe.ReplaceAllString(title, " "))
	if idx := strings.Index(title, " - "); idx > 0 {
		title = strings.TrimSpace(title[:idx])
	}
	return title
}

// htmlStrategy parses article pages with goquery.
type htmlStrategy struct{}

func (*htmlStrategy) Name() string { return "html" }

func (*htmlStrategy) Matches(contentType string) bool {
	return contentType == "" ||
		strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

var contentSelectors = []string{
	"article", "main", ".article-body", ".story-body", ".post-content", ".content", "#content",
}

var bylineSelectors = []string{
	`meta[name="author"]`, ".byline", ".author", `[rel="author"]`, ".post-author",
}

var dateSelectors = []string{
	`meta[property="article:published_time"]`, `meta[name="publishdate"]`,
	`meta[name="date"]`, "time[datetime]", ".publish-date", ".timestamp",
}

func (*htmlStrategy) Extract(raw content.RawDocument) (Draft, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return Draft{}, fmt.Errorf("parse html: %w", err)
	}

	var draft Draft
	if lang, ok := doc.Find("html").Attr("lang"); ok {
		if idx := strings.IndexByte(lang, '-'); idx > 0 {
			lang = lang[:idx]
		}
		draft.Language = strings.ToLower(lang)
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		draft.CanonicalRef = href
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		draft.Title = og
	} else if t := doc.Find("title").First().Text(); t != "" {
		draft.Title = t
	} else {
		draft.Title = doc.Find("h1").First().Text()
	}

	for _, sel := range bylineSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if v, ok := node.Attr("content"); ok {
			draft.Byline = strings.TrimSpace(v)
		} else {
			draft.Byline = strings.TrimSpace(node.Text())
		}
		if draft.Byline != "" {
			break
		}
	}

	for _, sel := range dateSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if v, ok := node.Attr("content"); ok {
			draft.PublishedRaw = strings.TrimSpace(v)
		} else if v, ok := node.Attr("datetime"); ok {
			draft.PublishedRaw = strings.TrimSpace(v)
		} else {
			draft.PublishedRaw = strings.TrimSpace(node.Text())
		}
		if draft.PublishedRaw != "" {
			break
		}
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()
	for _, sel := range contentSelectors {
		text := squeeze(doc.Find(sel).First().Text())
		if len(text) >= minTextChars {
			draft.Text = text
			break
		}
	}
	if draft.Text == "" {
		draft.Text = squeeze(doc.Find("body").Text())
	}
	return draft, nil
}

// plainStrategy handles text/plain payloads such as wire copy.
type plainStrategy struct{}

func (*plainStrategy) Name() string { return "plain" }

func (*plainStrategy) Matches(contentType string) bool {
	return strings.Contains(contentType, "text/plain")
}

func (*plainStrategy) Extract(raw content.RawDocument) (Draft, error) {
	text := squeeze(string(raw.Body))
	if text == "" {
		return Draft{}, fmt.Errorf("empty document")
	}
	draft := Draft{Text: text}
	if idx := strings.IndexByte(string(raw.Body), '\n'); idx > 0 {
		draft.Title = squeeze(string(raw.Body)[:idx])
	}
	return draft, nil
}

func squeeze(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
