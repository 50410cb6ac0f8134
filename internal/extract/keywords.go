package extract

import "strings"

// Sport keyword vocabulary used for relevance tagging and query filters.
var sportsKeywords = map[string][]string{
	"basketball": {"basketball", "nba", "wnba", "ncaa basketball", "march madness"},
	"football":   {"nfl", "college football", "super bowl", "touchdown"},
	"baseball":   {"baseball", "mlb", "world series", "spring training"},
	"soccer":     {"soccer", "mls", "fifa", "world cup", "premier league"},
	"hockey":     {"hockey", "nhl", "stanley cup"},
	"tennis":     {"tennis", "wimbledon", "french open", "australian open"},
	"golf":       {"golf", "pga", "masters", "british open"},
	"olympics":   {"olympics", "olympic games"},
}

// Content type classification patterns, checked in order.
var contentTypePatterns = []struct {
	name     string
	keywords []string
}{
	{"game_recap", []string{"final score", "game recap", "box score", "highlights", "final:"}},
	{"breaking_news", []string{"breaking:", "just in:", "report:", "sources:", "exclusive:"}},
	{"trade", []string{"trade", "traded", "acquired", "signs", "contract", "deal"}},
	{"injury", []string{"injury", "injured", "out for", "sidelined", "questionable"}},
	{"roster", []string{"roster", "lineup", "starting", "depth chart"}},
	{"analysis", []string{"analysis", "breakdown", "preview", "prediction", "outlook"}},
	{"interview", []string{"interview", "says", "speaks", "comments", "quotes"}},
}

// SportsKeywords returns the distinct sport keywords found in text, with the
// sport name itself included when any of its markers match.
func SportsKeywords(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	var found []string
	for sport, markers := range sportsKeywords {
		matched := false
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				if _, ok := seen[marker]; !ok {
					seen[marker] = struct{}{}
					found = append(found, marker)
				}
				matched = true
			}
		}
		if matched {
			if _, ok := seen[sport]; !ok {
				seen[sport] = struct{}{}
				found = append(found, sport)
			}
		}
	}
	return found
}

// ClassifyContentType buckets an article by title and text markers.
func ClassifyContentType(title, text string) string {
	combined := strings.ToLower(title + " " + text)
	for _, p := range contentTypePatterns {
		for _, kw := range p.keywords {
			if strings.Contains(combined, kw) {
				return p.name
			}
		}
	}
	return "general"
}
