package search

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/lexicon"
)

// Weights are the fusion weights of the four ranking signals.
type Weights struct {
	Baseline     float64 `yaml:"baseline" json:"baseline"`
	Personalized float64 `yaml:"personalized" json:"personalized"`
	Semantic     float64 `yaml:"semantic" json:"semantic"`
	Lexical      float64 `yaml:"lexical" json:"lexical"`
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{Baseline: 0.10, Personalized: 0.45, Semantic: 0.25, Lexical: 0.20}
}

func (w Weights) validate() error {
	for _, v := range []float64{w.Baseline, w.Personalized, w.Semantic, w.Lexical} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: fusion weights must be finite and non-negative", ErrInvalidOption)
		}
	}
	if w.Baseline+w.Personalized+w.Semantic+w.Lexical == 0 {
		return fmt.Errorf("%w: fusion weights are all zero", ErrInvalidOption)
	}
	return nil
}

// Reason weights reported in why[].
const (
	whyCitedBySeed  = 0.34
	whyCitesSeed    = 0.28
	whyDefinedTerm  = 0.22
	whySharedParent = 0.15
	whyMultiHop     = 0.12

	maxWhy = 3
)

// signals are the per-candidate inputs to fusion, each in [0,1].
type signals struct {
	baseline     float64
	personalized float64
	semantic     float64
	lexical      float64
}

// active records which signals took part in a ranking.
type active struct {
	personalized bool
	semantic     bool
	lexical      bool
}

// urs fuses signals into a 0-100 score. Inactive signals drop out of both
// numerator and denominator.
func (w Weights) urs(s signals, on active) float64 {
	num := w.Baseline * s.baseline
	den := w.Baseline
	if on.personalized {
		num += w.Personalized * s.personalized
		den += w.Personalized
	}
	if on.semantic {
		num += w.Semantic * s.semantic
		den += w.Semantic
	}
	if on.lexical {
		num += w.Lexical * s.lexical
		den += w.Lexical
	}
	if den == 0 {
		return 0
	}
	return round(100*num/den, 2)
}

// liftSignal maps the ratio of personalized to baseline mass onto [0,1]:
// lift 1/64 and below is 0, lift 64 and above is 1.
func liftSignal(mass, baseline float64) float64 {
	if mass <= 0 {
		return 0
	}
	lift := mass / math.Max(baseline, 1e-12)
	return clamp01((math.Log2(lift) + 6) / 12)
}

// lexicalStrength scores a keyword match with a bonus for title hits.
func lexicalStrength(m lexicon.Match, terms int) float64 {
	if terms == 0 {
		return 0
	}
	return clamp01((float64(m.Matched) + 0.5*float64(m.TitleMatched)) / (1.5 * float64(terms)))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// explain lists up to three reasons linking node n to the query, strongest first.
func (w Weights) explain(g *graph.Snapshot, n int32, seeds []int32, sig signals, matched, terms int) []Why {
	seeds = slices.DeleteFunc(slices.Clone(seeds), func(s int32) bool { return s == n })
	var out []Why
	if s, ok := firstSeed(seeds, func(s int32) bool { return slices.Contains(g.CitationsOut(s), n) }); ok {
		out = append(out, Why{Type: "cited_by_seed", Detail: "cited by " + g.RefID(s), Weight: whyCitedBySeed})
	} else if s, ok := firstSeed(seeds, func(s int32) bool { return slices.Contains(g.CitationsOut(n), s) }); ok {
		out = append(out, Why{Type: "cites_seed", Detail: "cites " + g.RefID(s), Weight: whyCitesSeed})
	}
	if term, ok := sharedTerm(g, n, seeds); ok {
		out = append(out, Why{Type: "defined_term", Detail: "shares defined term " + g.Title(term), Weight: whyDefinedTerm})
	}
	if p := g.Parent(n); p != graph.NoNode {
		if _, ok := firstSeed(seeds, func(s int32) bool { return g.Parent(s) == p }); ok {
			out = append(out, Why{Type: "shared_parent", Detail: "same parent " + g.RefID(p), Weight: whySharedParent})
		}
	}
	if sig.lexical > 0 {
		out = append(out, Why{
			Type:   "keyword_match",
			Detail: fmt.Sprintf("matches %d of %d keywords", matched, terms),
			Weight: round(w.Lexical*sig.lexical, 2),
		})
	}
	if sig.semantic > 0 {
		out = append(out, Why{
			Type:   "semantic_similarity",
			Detail: fmt.Sprintf("similarity %.2f", sig.semantic),
			Weight: round(w.Semantic*sig.semantic, 2),
		})
	}
	if len(out) == 0 && sig.personalized > 0 {
		out = append(out, Why{Type: "multi_hop", Detail: "reachable from the query's provisions", Weight: whyMultiHop})
	}
	slices.SortStableFunc(out, func(a, b Why) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		}
		return 0
	})
	if len(out) > maxWhy {
		out = out[:maxWhy]
	}
	if out == nil {
		out = []Why{}
	}
	return out
}

func firstSeed(seeds []int32, pred func(int32) bool) (int32, bool) {
	for _, s := range seeds {
		if pred(s) {
			return s, true
		}
	}
	return graph.NoNode, false
}

// sharedTerm finds a definition that links n with a seed: one both use, one
// n is and a seed uses, or one a seed is and n uses.
func sharedTerm(g *graph.Snapshot, n int32, seeds []int32) (int32, bool) {
	mine := g.TermsOut(n)
	for _, s := range seeds {
		if slices.Contains(mine, s) {
			return s, true
		}
		theirs := g.TermsOut(s)
		if slices.Contains(theirs, n) {
			return n, true
		}
		for _, t := range mine {
			if slices.Contains(theirs, t) {
				return t, true
			}
		}
	}
	return graph.NoNode, false
}

// Snippet window around the first keyword, in runes.
const (
	snippetBefore = 60
	snippetAfter  = 120
	snippetLead   = 180
)

// snippet cuts a window of text around the first word whose stem is a
// keyword, or returns the leading text when none is.
func snippet(text string, keywords []string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)

	pos := -1
	if len(keywords) > 0 {
		for _, span := range lexicon.WordSpans(text) {
			word := strings.ToLower(text[span[0]:span[1]])
			if slices.Contains(keywords, lexicon.Stem(word)) {
				pos = utf8.RuneCountInString(text[:span[0]])
				break
			}
		}
	}
	if pos < 0 {
		if len(runes) <= snippetLead {
			return text
		}
		return string(runes[:snippetLead]) + "..."
	}

	start := max(pos-snippetBefore, 0)
	end := min(pos+snippetAfter, len(runes))
	out := string(runes[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out += "..."
	}
	return out
}
