package router

import (
	"errors"
	"sort"
	"strings"

	"skillhost/pkg/logger"
	"skillhost/pkg/skills"
)

// ErrNoRoute means no skill matched the utterance and no always-on
// skill was available. Callers surface this; the router never guesses.
var ErrNoRoute = errors.New("no skill routes this request")

// SkillMatch is one routing candidate with its confidence score.
type SkillMatch struct {
	Skill      *skills.SkillInfo
	Confidence float64
}

// Scorer computes how well an utterance matches a skill. It must be
// deterministic: the same inputs yield the same score. The router only
// relies on ordering and exclusion, so scorers are swappable.
type Scorer interface {
	Score(utterance string, skill *skills.SkillInfo) float64
}

// Router routes utterances to skills. Always-on available skills are
// part of every decision; unavailable skills are never surfaced.
type Router struct {
	scorer   Scorer
	baseline float64
	maxMatch int
}

type Option func(*Router)

func WithScorer(s Scorer) Option {
	return func(r *Router) {
		if s != nil {
			r.scorer = s
		}
	}
}

func WithBaselineConfidence(c float64) Option {
	return func(r *Router) { r.baseline = c }
}

func WithMaxMatches(n int) Option {
	return func(r *Router) { r.maxMatch = n }
}

func New(opts ...Option) *Router {
	r := &Router{
		scorer:   TokenOverlapScorer{},
		baseline: 1.0,
		maxMatch: 5,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns matches ordered: always-on available skills first in
// registry load order at the baseline confidence, then utterance
// matches in descending confidence with load-order tie-break.
// Skills failing their capability check never appear, matched or not.
func (r *Router) Route(utterance string, reg *skills.Registry, avail skills.AvailabilitySet) ([]SkillMatch, error) {
	var matches []SkillMatch
	seen := make(map[string]bool)

	for _, info := range reg.ListAlwaysOn() {
		if !avail.Available(info.Name) {
			continue
		}
		matches = append(matches, SkillMatch{Skill: info, Confidence: r.baseline})
		seen[info.Name] = true
	}

	var scored []SkillMatch
	for _, info := range reg.ListAll() {
		if seen[info.Name] || !avail.Available(info.Name) {
			continue
		}
		confidence := r.scorer.Score(utterance, info)
		if confidence <= 0 {
			continue
		}
		scored = append(scored, SkillMatch{Skill: info, Confidence: confidence})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return scored[i].Skill.LoadOrder() < scored[j].Skill.LoadOrder()
	})
	if r.maxMatch > 0 && len(scored) > r.maxMatch {
		scored = scored[:r.maxMatch]
	}
	matches = append(matches, scored...)

	if len(matches) == 0 {
		return nil, ErrNoRoute
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Skill.Name)
	}
	logger.DebugCF("router", "Routed utterance",
		map[string]interface{}{"skills": strings.Join(names, ","), "count": len(matches)})
	return matches, nil
}

// TokenOverlapScorer scores by lowercase token overlap between the
// utterance and the skill's name plus description. Deterministic and
// intentionally simple; real deployments plug in a smarter Scorer.
type TokenOverlapScorer struct{}

func (TokenOverlapScorer) Score(utterance string, skill *skills.SkillInfo) float64 {
	utteranceTokens := tokenize(utterance)
	if len(utteranceTokens) == 0 {
		return 0
	}

	vocab := make(map[string]bool)
	for _, tok := range tokenize(skill.Name + " " + skill.Description) {
		vocab[tok] = true
	}
	for _, part := range strings.Split(skill.Name, "-") {
		vocab[strings.ToLower(part)] = true
	}

	hits := 0
	for _, tok := range utteranceTokens {
		if vocab[tok] {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(utteranceTokens))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
