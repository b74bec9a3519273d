// File: internal/classify/score.go
// Brief: Confidence scoring of signal profiles against extracted signals.

package classify

import (
	"sort"

	"github.com/example/gantry/internal/scan"
)

// Bonus multipliers applied per matched signal. Each group multiplies the
// base score independently and only when it matched at least once.
const (
	optionalDepBonus = 0.10
	filePatternBonus = 0.15
	configFileBonus  = 0.10
)

// Match is one scored stack candidate.
type Match struct {
	StackKey   string
	Confidence float64

	MatchedRequired []string
	MatchedOptional []string
	MatchedPatterns []string
	MatchedConfigs  []string
}

// Score computes the confidence of one profile against the signals. A
// profile with no matched required dependency scores zero outright.
func Score(p Profile, sig *scan.Signals) Match {
	m := Match{StackKey: p.StackKey}
	for _, dep := range p.RequiredDeps {
		if sig.HasDependency(dep) {
			m.MatchedRequired = append(m.MatchedRequired, dep)
		}
	}
	if len(m.MatchedRequired) == 0 {
		return m
	}

	score := p.BaseConfidence * float64(len(m.MatchedRequired)) / float64(len(p.RequiredDeps))

	for _, dep := range p.OptionalDeps {
		if sig.HasDependency(dep) {
			m.MatchedOptional = append(m.MatchedOptional, dep)
		}
	}
	if n := len(m.MatchedOptional); n > 0 {
		score *= 1 + optionalDepBonus*float64(n)
	}

	for _, pattern := range p.FilePatterns {
		if sig.HasFileMatch(pattern) {
			m.MatchedPatterns = append(m.MatchedPatterns, pattern)
		}
	}
	if n := len(m.MatchedPatterns); n > 0 {
		score *= 1 + filePatternBonus*float64(n)
	}

	for _, cfg := range p.ConfigFiles {
		if sig.HasFile(cfg) {
			m.MatchedConfigs = append(m.MatchedConfigs, cfg)
		}
	}
	if n := len(m.MatchedConfigs); n > 0 {
		score *= 1 + configFileBonus*float64(n)
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	m.Confidence = score
	return m
}

// Rank scores every profile and returns the candidates ordered by
// confidence, highest first. Ordering is stable: equal scores keep the
// profile table order so repeated runs produce identical output.
func Rank(sig *scan.Signals) []Match {
	matches := make([]Match, 0, len(profiles))
	for _, p := range profiles {
		matches = append(matches, Score(p, sig))
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// Best returns the highest-confidence candidate, if any scored above zero.
func Best(sig *scan.Signals) (Match, bool) {
	ranked := Rank(sig)
	if len(ranked) == 0 || ranked[0].Confidence == 0 {
		return Match{}, false
	}
	return ranked[0], true
}
