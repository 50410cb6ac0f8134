package rank

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// cursor is a keyset over the page ordering tuple (score, published_at,
// canonical_url): it records the last returned position so the next page
// resumes strictly after it no matter what was indexed in between. The
// query hash pins a cursor to the query that issued it so stale cursors
// fail loudly instead of returning the wrong page.
type cursor struct {
	Score        float64 `json:"s"`
	PublishedAt  *int64  `json:"p,omitempty"` // unix nanos, nil when unpublished
	CanonicalURL string  `json:"u"`
	QueryHash    string  `json:"q"`
}

// ErrBadCursor is wrapped into cursor decode failures.
var ErrBadCursor = fmt.Errorf("invalid pagination cursor")

// cursorAfter captures the position of the last hit on a page. score must
// be the backend's own sort score for that hit.
func cursorAfter(score float64, published time.Time, canonicalURL, hash string) cursor {
	c := cursor{Score: score, CanonicalURL: canonicalURL, QueryHash: hash}
	if !published.IsZero() {
		p := published.UnixNano()
		c.PublishedAt = &p
	}
	return c
}

// published returns the cursor's publication time, zero when unpublished.
func (c cursor) published() time.Time {
	if c.PublishedAt == nil {
		return time.Time{}
	}
	return time.Unix(0, *c.PublishedAt).UTC()
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

func decodeCursor(token string, wantHash string) (cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	if c.CanonicalURL == "" || c.QueryHash != wantHash {
		return cursor{}, fmt.Errorf("%w: cursor does not match query", ErrBadCursor)
	}
	return c, nil
}

// queryHash fingerprints the ranking-relevant parts of a query. Pagination
// fields are excluded so every page of one logical query shares a hash.
func queryHash(q Query) string {
	sports := append([]string(nil), q.Sports...)
	sort.Strings(sports)
	sources := append([]string(nil), q.Sources...)
	sort.Strings(sources)
	types := append([]string(nil), q.ContentTypes...)
	sort.Strings(types)
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortRelevance
	}
	key := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(q.Text)),
		strings.Join(sports, ","),
		strings.Join(sources, ","),
		strings.Join(types, ","),
		sortBy,
		fmt.Sprintf("spam=%t", q.IncludeSpam),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
