package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Tracking, analytics, and session parameters stripped during URL
// canonicalization.
var strippedParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "utm_id": {}, "utm_source_platform": {},
	"utm_creative_format": {}, "utm_marketing_tactic": {},
	"fbclid": {}, "gclid": {}, "dclid": {}, "msclkid": {}, "twclid": {},
	"_ga": {}, "_gl": {}, "mc_cid": {}, "mc_eid": {}, "ref": {},
	"referrer": {}, "affiliate": {}, "partner": {},
	"sessionid": {}, "session_id": {}, "sid": {}, "jsessionid": {},
	"phpsessid": {}, "cfid": {}, "cftoken": {}, "_t": {}, "timestamp": {},
	"cache_bust": {},
}

// CanonicalizeURL normalizes a URL for deduplication: lowercases scheme and
// host, drops the www prefix, strips tracking parameters and fragments,
// removes default ports and trailing slashes, and sorts the remaining query
// parameters.
func CanonicalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if u.Path == "" {
		u.Path = "/"
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	u.Fragment = ""

	q := u.Query()
	kept := url.Values{}
	for key, values := range q {
		if _, drop := strippedParams[strings.ToLower(key)]; drop {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			kept.Set(key, values[0])
		}
	}
	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kept.Get(k)))
	}
	u.RawQuery = b.String()

	return u.String(), nil
}

// ResolveCanonical prefers an in-document canonical link over the fetched
// URL, resolving it against base when relative.
func ResolveCanonical(declared, base string) (string, error) {
	if declared == "" {
		return CanonicalizeURL(base)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return CanonicalizeURL(base)
	}
	ref, err := url.Parse(strings.TrimSpace(declared))
	if err != nil {
		return CanonicalizeURL(base)
	}
	return CanonicalizeURL(baseURL.ResolveReference(ref).String())
}
