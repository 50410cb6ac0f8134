// Package quality scores content items on a fixed set of weighted signals
// and flags spam. Scoring is a pure function of the item and its source, so
// re-scoring the same inputs always yields the same result.
package quality

import (
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// Weights controls the blend of quality signals. The fields should sum to
// one; Normalize rescales them when they do not.
type Weights struct {
	Reputation float64 `mapstructure:"reputation"`
	Confidence float64 `mapstructure:"confidence"`
	Depth      float64 `mapstructure:"depth"`
	Title      float64 `mapstructure:"title"`
	Relevance  float64 `mapstructure:"relevance"`
	Structure  float64 `mapstructure:"structure"`
}

// DefaultWeights is the production signal blend.
func DefaultWeights() Weights {
	return Weights{
		Reputation: 0.25,
		Confidence: 0.15,
		Depth:      0.20,
		Title:      0.15,
		Relevance:  0.15,
		Structure:  0.10,
	}
}

func (w Weights) sum() float64 {
	return w.Reputation + w.Confidence + w.Depth + w.Title + w.Relevance + w.Structure
}

// Normalize rescales the weights to sum to one, falling back to the
// defaults when every weight is zero.
func (w Weights) Normalize() Weights {
	s := w.sum()
	if s <= 0 {
		return DefaultWeights()
	}
	w.Reputation /= s
	w.Confidence /= s
	w.Depth /= s
	w.Title /= s
	w.Relevance /= s
	w.Structure /= s
	return w
}

var clickbaitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you won'?t believe`),
	regexp.MustCompile(`(?i)what happened next`),
	regexp.MustCompile(`(?i)number \d+ will`),
	regexp.MustCompile(`(?i)doctors hate`),
	regexp.MustCompile(`(?i)one (weird|simple) trick`),
	regexp.MustCompile(`(?i)this is why`),
	regexp.MustCompile(`(?i)will (shock|blow) you`),
}

var boilerplateMarkers = []string{
	"click here", "subscribe now", "sponsored content", "buy now",
	"limited time offer", "act now", "sign up today",
}

// Scorer computes quality scores in the [0, 1] range.
type Scorer struct {
	weights    Weights
	spamCutoff float64
	degraded   float64
	logger     *zap.Logger
}

// Options configures a Scorer.
type Options struct {
	Weights Weights
	// SpamCutoff marks items spam when their final score falls below it.
	SpamCutoff float64
	// DegradedDefault is the conservative score assigned when signal
	// inputs are unavailable.
	DegradedDefault float64
}

// NewScorer builds a Scorer.
func NewScorer(opts Options, logger *zap.Logger) *Scorer {
	if opts.SpamCutoff <= 0 {
		opts.SpamCutoff = 0.3
	}
	if opts.DegradedDefault <= 0 {
		opts.DegradedDefault = 0.4
	}
	return &Scorer{
		weights:    opts.Weights.Normalize(),
		spamCutoff: opts.SpamCutoff,
		degraded:   opts.DegradedDefault,
		logger:     logger,
	}
}

// Score computes the item's quality score and spam flag in place. The same
// item and source always produce the same outcome.
func (s *Scorer) Score(item *content.ContentItem, source content.Source) {
	rep := reputationSignal(source)
	conf := clamp01(item.Confidence)
	depth := depthSignal(item.WordCount)
	title := titleSignal(item.Title)
	relevance := relevanceSignal(item.SportsKeywords)
	structure := structureSignal(item)

	score := s.weights.Reputation*rep +
		s.weights.Confidence*conf +
		s.weights.Depth*depth +
		s.weights.Title*title +
		s.weights.Relevance*relevance +
		s.weights.Structure*structure
	score = clamp01(score)

	spamSignals := countSpamSignals(item)
	isSpam := spamSignals >= 2 || score < s.spamCutoff
	if spamSignals >= 2 {
		// Heuristic spam caps the score regardless of other signals.
		score = math.Min(score, s.spamCutoff)
	}

	item.QualityScore = score
	item.RelevanceScore = relevance
	item.IsSpam = isSpam
	item.NeedsRescore = false

	s.logger.Debug("scored item",
		zap.String("item_id", item.ID),
		zap.Float64("score", score),
		zap.Bool("spam", isSpam),
		zap.Int("spam_signals", spamSignals),
	)
}

// ScoreDegraded assigns the conservative default when the scorer's inputs
// are unavailable, for example when the source record could not be loaded.
// The item is marked for rescoring once signals return.
func (s *Scorer) ScoreDegraded(item *content.ContentItem) {
	item.QualityScore = s.degraded
	item.IsSpam = false
	item.NeedsRescore = true
}

func reputationSignal(source content.Source) float64 {
	tier := 0.6
	switch source.QualityTier {
	case content.TierPremium:
		tier = 1.0
	case content.TierQuality:
		tier = 0.8
	}
	return clamp01(0.7*clamp01(source.Reputation) + 0.3*tier)
}

// depthSignal saturates around long-form length; very short items are
// penalized below the usual article floor.
func depthSignal(wordCount int) float64 {
	if wordCount <= 0 {
		return 0
	}
	if wordCount < 100 {
		return 0.2 * float64(wordCount) / 100
	}
	return clamp01(float64(wordCount) / 1200)
}

func titleSignal(title string) float64 {
	if title == "" {
		return 0
	}
	score := 1.0

	for _, p := range clickbaitPatterns {
		if p.MatchString(title) {
			score -= 0.4
			break
		}
	}

	letters, uppers := 0, 0
	for _, r := range title {
		if r >= 'a' && r <= 'z' {
			letters++
		}
		if r >= 'A' && r <= 'Z' {
			letters++
			uppers++
		}
	}
	if letters > 0 && float64(uppers)/float64(letters) > 0.5 {
		score -= 0.3
	}

	if strings.Count(title, "!")+strings.Count(title, "?") > 1 {
		score -= 0.2
	}

	if n := len(strings.Fields(title)); n < 3 || n > 25 {
		score -= 0.2
	}

	return clamp01(score)
}

func relevanceSignal(keywords []string) float64 {
	return clamp01(float64(len(keywords)) / 3)
}

func structureSignal(item *content.ContentItem) float64 {
	score := 0.0
	if item.Byline != "" {
		score += 0.5
	}
	if !item.PublishedAt.IsZero() {
		score += 0.5
	}
	return score
}

// countSpamSignals applies the spam heuristics: clickbait, promotional
// boilerplate, keyword stuffing, and low vocabulary diversity.
func countSpamSignals(item *content.ContentItem) int {
	signals := 0

	for _, p := range clickbaitPatterns {
		if p.MatchString(item.Title) {
			signals++
			break
		}
	}

	lowerText := strings.ToLower(item.Text)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lowerText, marker) {
			signals++
			break
		}
	}

	words := strings.Fields(lowerText)
	if len(words) >= 50 {
		freq := make(map[string]int, len(words))
		top := 0
		for _, w := range words {
			freq[w]++
			if freq[w] > top {
				top = freq[w]
			}
		}
		if float64(top)/float64(len(words)) > 0.15 {
			signals++
		}
		if float64(len(freq))/float64(len(words)) < 0.3 {
			signals++
		}
	}

	return signals
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
