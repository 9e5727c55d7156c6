// Package query turns free search text into explicit references, keywords
// and semantic pseudo-seeds against one published graph.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/lexgraph/ai"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/lexicon"
	"github.com/poiesic/lexgraph/registry"
)

// Defaults for pseudo-seed selection.
const (
	DefaultPseudoSeeds   = 5
	DefaultMinSimilarity = 0.35
)

// Match is a node the query points at.
type Match struct {
	Node       int32
	ID         string
	RefID      string
	Act        string
	Text       string  // token or term as written
	Similarity float32 // set for pseudo-seeds
}

// Interpretation is the structured reading of one query.
type Interpretation struct {
	Text           string
	Scope          string
	Provisions     []Match
	Definitions    []Match
	Keywords       []string // stemmed, deduplicated, capped
	KeywordText    string   // raw text not consumed by references or definitions
	PseudoSeeds    []Match
	Vector         []float32 // embedding of KeywordText, nil when unavailable
	Ambiguous      bool
	ANNUnavailable bool
	Warnings       []string
}

// Explicit reports whether the query named provisions or definitions.
func (in *Interpretation) Explicit() bool {
	return len(in.Provisions) > 0 || len(in.Definitions) > 0
}

// Empty reports whether nothing usable was found in the query.
func (in *Interpretation) Empty() bool {
	return !in.Explicit() && len(in.Keywords) == 0 && strings.TrimSpace(in.KeywordText) == ""
}

func (in *Interpretation) warn(format string, args ...any) {
	in.Warnings = append(in.Warnings, fmt.Sprintf(format, args...))
}

// Interpreter parses queries. It is safe for concurrent use.
type Interpreter struct {
	embedder      ai.Embedder
	pseudoSeeds   int
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter) error

// WithPseudoSeeds sets how many ANN hits may become pseudo-seeds and the
// similarity they must reach.
func WithPseudoSeeds(k int, minSimilarity float64) Option {
	return func(ip *Interpreter) error {
		if k < 0 || minSimilarity < -1 || minSimilarity > 1 {
			return fmt.Errorf("%w: pseudo-seeds k=%d min=%v", ErrInvalidParameter, k, minSimilarity)
		}
		ip.pseudoSeeds = k
		ip.minSimilarity = float32(minSimilarity)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ip *Interpreter) error {
		if logger == nil {
			logger = slog.Default()
		}
		ip.logger = logger.With("component", "query")
		return nil
	}
}

// NewInterpreter creates an interpreter. A nil embedder disables semantic
// lookups and every interpretation is flagged ANNUnavailable.
func NewInterpreter(embedder ai.Embedder, opts ...Option) (*Interpreter, error) {
	ip := &Interpreter{
		embedder:      embedder,
		pseudoSeeds:   DefaultPseudoSeeds,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default().With("component", "query"),
	}
	for _, opt := range opts {
		if err := opt(ip); err != nil {
			return nil, err
		}
	}
	return ip, nil
}

// Interpret reads text against the graph published in st. Only a missing
// graph and an unknown scope are errors; ambiguity and embedding failures
// are reported as flags on the interpretation.
func (ip *Interpreter) Interpret(ctx context.Context, st *registry.State, text, scope string) (*Interpretation, error) {
	if st == nil || st.Graph == nil {
		return nil, core.ErrGraphNotReady
	}
	g := st.Graph
	if scope == "" {
		scope = core.ScopeAll
	}
	if !g.Catalog().ValidScope(scope) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	in := &Interpretation{Text: strings.TrimSpace(text), Scope: scope}
	seen := make(map[int32]bool)
	var leftovers []string

	for _, clause := range SplitClauses(in.Text) {
		if i, ok := g.Lookup(clause); ok && strings.Contains(clause, ":") {
			if !g.InScope(i, scope) {
				in.Ambiguous = true
				in.warn("%s: outside scope %s", clause, scope)
				continue
			}
			if !seen[i] {
				seen[i] = true
				in.Provisions = append(in.Provisions, Match{Node: i, ID: g.ID(i), RefID: g.RefID(i), Act: g.Act(i), Text: clause})
			}
			continue
		}
		act, body := StripActPrefix(clause, g.Catalog())
		if act != "" && scope != core.ScopeAll && act != scope {
			in.Ambiguous = true
			in.warn("%s: act %s is outside scope %s", clause, act, scope)
			if cs := Candidates(body, true); len(cs) > 0 {
				leftovers = append(leftovers, cs[0].Leftovers()...)
			} else if body != "" {
				leftovers = append(leftovers, body)
			}
			continue
		}
		// A clause may name several references among plain words.
		for rest := body; rest != ""; {
			m, c, err := ip.resolveClause(g, act, rest, scope)
			switch {
			case err != nil:
				in.Ambiguous = true
				in.warn("%s: %v", clause, err)
				ip.logger.Debug("ambiguous reference", "clause", clause, "error", err)
			case m != nil && !seen[m.Node]:
				seen[m.Node] = true
				in.Provisions = append(in.Provisions, *m)
			}
			if c.Before != "" {
				leftovers = append(leftovers, c.Before)
			}
			rest = c.Rest
		}
	}

	leftovers = ip.resolveDefinitions(g, scope, leftovers, in, seen)
	in.KeywordText = strings.Join(strings.Fields(strings.Join(leftovers, " ")), " ")
	in.Keywords = lexicon.QueryTerms(in.KeywordText)

	if in.KeywordText != "" {
		ip.semantic(ctx, st, in)
	}
	return in, nil
}

// resolveClause finds the first reading of a clause that names a node and
// returns it with the text around the token. When nothing resolves the whole
// clause comes back as Before.
func (ip *Interpreter) resolveClause(g *graph.Snapshot, act, body, scope string) (*Match, Candidate, error) {
	for _, c := range Candidates(body, ip.allowGap(g, act, scope)) {
		node, err := ip.lookup(g, act, scope, c.Token)
		if err != nil {
			return nil, c, err
		}
		if node == graph.NoNode {
			continue
		}
		return &Match{
			Node:  node,
			ID:    g.ID(node),
			RefID: g.RefID(node),
			Act:   g.Act(node),
			Text:  c.Token.Raw,
		}, c, nil
	}
	return nil, Candidate{Before: body}, nil
}

func (ip *Interpreter) allowGap(g *graph.Snapshot, act, scope string) bool {
	if act == "" && scope != core.ScopeAll {
		act = scope
	}
	catalog := g.Catalog()
	if act != "" {
		a, ok := catalog.Lookup(act)
		return ok && a.SectionGaps
	}
	for _, a := range catalog.Acts() {
		if a.SectionGaps {
			return true
		}
	}
	return false
}

// lookup resolves a token: explicit act, then scope act, then the default
// act followed by the others. A token found in more than one non-default
// act is ambiguous.
func (ip *Interpreter) lookup(g *graph.Snapshot, act, scope string, tok Token) (int32, error) {
	catalog := g.Catalog()
	find := func(act string) int32 {
		if tok.Gap {
			if a, ok := catalog.Lookup(act); !ok || !a.SectionGaps {
				return graph.NoNode
			}
		}
		if i, ok := g.Lookup(core.MakeRefID(act, tok.Kind, tok.Local)); ok {
			return i
		}
		return graph.NoNode
	}

	switch {
	case act != "":
		return find(act), nil
	case scope != core.ScopeAll:
		return find(scope), nil
	}

	def := catalog.DefaultAct()
	if i := find(def); i != graph.NoNode {
		return i, nil
	}
	found := graph.NoNode
	var acts []string
	for _, other := range g.Acts() {
		if other == def {
			continue
		}
		if i := find(other); i != graph.NoNode {
			found = i
			acts = append(acts, other)
		}
	}
	if len(acts) > 1 {
		return graph.NoNode, fmt.Errorf("%w: %s %s found in %s", core.ErrAmbiguousToken, tok.Kind, tok.Local, strings.Join(acts, ", "))
	}
	return found, nil
}

// resolveDefinitions matches leftover pieces against definition titles and
// returns the pieces that are not definitions.
func (ip *Interpreter) resolveDefinitions(g *graph.Snapshot, scope string, pieces []string, in *Interpretation, seen map[int32]bool) []string {
	out := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		for _, term := range SplitTerms(piece) {
			node, ok := ip.definition(g, scope, term)
			if !ok {
				out = append(out, term)
				continue
			}
			if seen[node] {
				continue
			}
			seen[node] = true
			in.Definitions = append(in.Definitions, Match{
				Node:  node,
				ID:    g.ID(node),
				RefID: g.RefID(node),
				Act:   g.Act(node),
				Text:  term,
			})
		}
	}
	return out
}

func (ip *Interpreter) definition(g *graph.Snapshot, scope, term string) (int32, bool) {
	if scope != core.ScopeAll {
		return g.DefinitionByTerm(scope, term)
	}
	if i, ok := g.DefinitionByTerm(g.Catalog().DefaultAct(), term); ok {
		return i, true
	}
	return g.DefinitionByTerm("", term)
}

// semantic embeds the keyword text and, when the query named nothing
// explicitly, takes the closest in-scope nodes as pseudo-seeds.
func (ip *Interpreter) semantic(ctx context.Context, st *registry.State, in *Interpretation) {
	unavailable := func(reason string, err error) {
		in.ANNUnavailable = true
		in.Vector = nil
		in.PseudoSeeds = nil
		in.warn("semantic search unavailable: %s", reason)
		wrapped := fmt.Errorf("%w: %s", core.ErrANNUnavailable, reason)
		if err != nil {
			wrapped = fmt.Errorf("%w: %w", wrapped, err)
		}
		ip.logger.Warn("semantic lookup skipped", "error", wrapped)
	}
	if ip.embedder == nil || st.Vectors == nil || st.Vectors.Len() == 0 {
		unavailable("no index", nil)
		return
	}
	vec, err := ip.embedder.EmbedText(ctx, in.KeywordText)
	if err != nil {
		unavailable("embedding failed", err)
		return
	}
	if len(vec) != st.Vectors.Dim() {
		unavailable("dimension mismatch", fmt.Errorf("query %d, index %d", len(vec), st.Vectors.Dim()))
		return
	}
	in.Vector = vec
	if in.Explicit() || ip.pseudoSeeds == 0 {
		return
	}

	g := st.Graph
	hits, err := st.Vectors.Search(ctx, vec, ip.pseudoSeeds, func(n int32) bool {
		return g.InScope(n, in.Scope)
	})
	if err != nil {
		unavailable("search failed", err)
		return
	}
	for _, h := range hits {
		if h.Similarity < ip.minSimilarity {
			continue
		}
		in.PseudoSeeds = append(in.PseudoSeeds, Match{
			Node:       h.Node,
			ID:         g.ID(h.Node),
			RefID:      g.RefID(h.Node),
			Act:        g.Act(h.Node),
			Similarity: h.Similarity,
		})
	}
}
