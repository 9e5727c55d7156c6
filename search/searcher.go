package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lexgraph/cache"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/lexicon"
	"github.com/poiesic/lexgraph/metrics"
	"github.com/poiesic/lexgraph/query"
	"github.com/poiesic/lexgraph/registry"
	"github.com/poiesic/lexgraph/relatedness"
)

var tracer = otel.Tracer("lexgraph/search")

// Defaults for requests, ranking and caching.
const (
	DefaultK             = 25
	MaxK                 = 100
	DefaultMinStrictHits = 5
	DefaultSemanticK     = 50
	DefaultPPRBudget     = 750 * time.Millisecond
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheCapacity = 2048

	DefaultProvisionSeedWeight  = 1.0
	DefaultDefinitionSeedWeight = 1.2
	DefaultPseudoSeedWeight     = 0.3
)

// computeGrace bounds a shared search beyond its ranking budget, covering
// query embedding and candidate scoring.
const computeGrace = 5 * time.Second

// StateSource supplies the current published graph state.
type StateSource interface {
	Current() (*registry.State, error)
}

// Fingerprinter computes personalized importance around a seed set.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, st *registry.State, seeds []relatedness.Seed) (*relatedness.Fingerprint, error)
}

var (
	_ StateSource   = (*registry.Registry)(nil)
	_ Fingerprinter = (*relatedness.Engine)(nil)
)

// Searcher answers search, detail and catalog requests against the current
// graph state. It is safe for concurrent use.
type Searcher struct {
	source      StateSource
	interpreter *query.Interpreter
	engine      Fingerprinter

	weights       Weights
	minStrictHits int
	semanticK     int
	pprBudget     time.Duration
	cacheTTL      time.Duration
	cacheCapacity int

	provisionSeed  float64
	definitionSeed float64
	pseudoSeed     float64

	cache   *cache.Cache[*Response]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithWeights replaces the fusion weights.
func WithWeights(w Weights) Option {
	return func(s *Searcher) error {
		if err := w.validate(); err != nil {
			return err
		}
		s.weights = w
		return nil
	}
}

// WithMinStrictHits sets how many strict keyword matches avoid relaxation.
func WithMinStrictHits(n int) Option {
	return func(s *Searcher) error {
		if n < 0 {
			return fmt.Errorf("%w: min strict hits %d", ErrInvalidOption, n)
		}
		s.minStrictHits = n
		return nil
	}
}

// WithSemanticK sets how many nearest neighbours of the query vector are considered.
func WithSemanticK(k int) Option {
	return func(s *Searcher) error {
		if k <= 0 {
			return fmt.Errorf("%w: semantic k %d", ErrInvalidOption, k)
		}
		s.semanticK = k
		return nil
	}
}

// WithPPRBudget bounds the time spent on personalized importance per search.
func WithPPRBudget(d time.Duration) Option {
	return func(s *Searcher) error {
		if d <= 0 {
			return fmt.Errorf("%w: ppr budget %s", ErrInvalidOption, d)
		}
		s.pprBudget = d
		return nil
	}
}

// WithCache sets the response cache TTL and capacity.
func WithCache(ttl time.Duration, capacity int) Option {
	return func(s *Searcher) error {
		if ttl < 0 || capacity <= 0 {
			return fmt.Errorf("%w: cache ttl %s capacity %d", ErrInvalidOption, ttl, capacity)
		}
		s.cacheTTL = ttl
		s.cacheCapacity = capacity
		return nil
	}
}

// WithSeedWeights sets the walk weights of explicit provisions, definitions
// and semantic pseudo-seeds.
func WithSeedWeights(provision, definition, pseudo float64) Option {
	return func(s *Searcher) error {
		if !(provision > 0) || !(definition > 0) || !(pseudo > 0) {
			return fmt.Errorf("%w: seed weights must be positive", ErrInvalidOption)
		}
		s.provisionSeed, s.definitionSeed, s.pseudoSeed = provision, definition, pseudo
		return nil
	}
}

// WithMetrics records searches and cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "search")
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	source StateSource,
	interpreter *query.Interpreter,
	engine Fingerprinter,
	opts ...Option,
) (*Searcher, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if interpreter == nil {
		return nil, ErrInterpreterRequired
	}
	if engine == nil {
		return nil, ErrEngineRequired
	}

	s := &Searcher{
		source:         source,
		interpreter:    interpreter,
		engine:         engine,
		weights:        DefaultWeights(),
		minStrictHits:  DefaultMinStrictHits,
		semanticK:      DefaultSemanticK,
		pprBudget:      DefaultPPRBudget,
		cacheTTL:       DefaultCacheTTL,
		cacheCapacity:  DefaultCacheCapacity,
		provisionSeed:  DefaultProvisionSeedWeight,
		definitionSeed: DefaultDefinitionSeedWeight,
		pseudoSeed:     DefaultPseudoSeedWeight,
		logger:         slog.Default().With("component", "search"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	c, err := cache.New[*Response](
		cache.WithName("search"),
		cache.WithCapacity(s.cacheCapacity),
		cache.WithTTL(s.cacheTTL),
		cache.WithComputeTimeout(s.pprBudget+computeGrace),
		cache.WithMetrics(s.metrics),
		cache.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.cache = c
	return s, nil
}

// Close releases the response cache.
func (s *Searcher) Close() {
	s.cache.Close()
}

// Search ranks provisions for req against the current graph state.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	return s.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor searches with monitoring.
// Start and Finish fire for every call. The stage callbacks fire only for the
// call whose request computes the response: cache hits and calls that join an
// identical in-flight search see Start and Finish alone. Stage callbacks may
// still arrive after the computing call's own context was cancelled.
func (s *Searcher) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	start := time.Now()

	st, err := s.source.Current()
	if err != nil {
		s.metrics.RecordSearch("not_ready", time.Since(start), 0)
		return nil, err
	}
	req, err = normalizeRequest(st.Graph, req)
	if err != nil {
		s.metrics.RecordSearch("invalid", time.Since(start), 0)
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "search.Search",
		trace.WithAttributes(
			attribute.String("scope", req.Scope),
			attribute.Int("k", req.K),
			attribute.Int("offset", req.Offset),
			attribute.Int64("graph_version", int64(st.Version)),
		),
	)
	defer span.End()

	monitor.Start(req)

	var (
		resp *Response
		hit  bool
	)
	key := cacheKey(req)
	if key == "" {
		resp = emptyResponse(st, req)
	} else {
		resp, hit, err = s.cache.GetOrCompute(ctx, key, st.Version, func(ctx context.Context) (*Response, bool, error) {
			resp, err := s.compute(ctx, st, req, monitor)
			if err != nil {
				return nil, false, err
			}
			// A later request with more time may do better.
			return resp, !resp.Debug.Partial, nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search failed")
			s.metrics.RecordSearch("error", time.Since(start), 0)
			s.logger.Error("search failed", "query", req.Query, "err", err)
			return nil, err
		}
		if hit {
			cp := *resp
			cp.Debug.CacheHit = true
			resp = &cp
		}
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("results", len(resp.Results)),
		attribute.Int("total", resp.Pagination.Total),
		attribute.Bool("cache_hit", resp.Debug.CacheHit),
		attribute.Bool("partial", resp.Debug.Partial),
	)
	s.metrics.RecordSearch("ok", duration, len(resp.Results), resp.Debug.flags()...)
	s.logger.Debug("search completed",
		"query", req.Query,
		"scope", req.Scope,
		"results", len(resp.Results),
		"total", resp.Pagination.Total,
		"cache_hit", resp.Debug.CacheHit,
		"duration", duration)

	monitor.Finish(resp)
	return resp, nil
}

// normalizeRequest applies defaults and validates paging and scope.
func normalizeRequest(g *graph.Snapshot, req Request) (Request, error) {
	switch {
	case req.K < 0:
		return req, fmt.Errorf("%w: k must not be negative", ErrInvalidRequest)
	case req.K == 0:
		req.K = DefaultK
	case req.K > MaxK:
		req.K = MaxK
	}
	if req.Offset < 0 {
		return req, fmt.Errorf("%w: offset must not be negative", ErrInvalidRequest)
	}
	req.Scope = strings.TrimSpace(req.Scope)
	if req.Scope == "" {
		req.Scope = core.ScopeAll
	}
	if !g.Catalog().ValidScope(req.Scope) {
		return req, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, query.ErrInvalidScope, req.Scope)
	}
	return req, nil
}

// cacheKey identifies a request; empty for a blank query.
func cacheKey(req Request) string {
	q := strings.ToLower(strings.Join(strings.Fields(req.Query), " "))
	if q == "" {
		return ""
	}
	return q + "\x00" + strconv.Itoa(req.K) + "\x00" + strconv.Itoa(req.Offset) + "\x00" + req.Scope
}

func emptyResponse(st *registry.State, req Request) *Response {
	return &Response{
		QueryInterpretation: Interpretation{
			Provisions:  []string{},
			Definitions: []string{},
			Keywords:    []string{},
			PseudoSeeds: []string{},
		},
		Results:    []Result{},
		Pagination: Pagination{Offset: req.Offset, Limit: req.K},
		Debug: Debug{
			EmptyQuery:   true,
			GraphVersion: st.Version,
			Warnings:     []string{},
		},
	}
}

// ranked is a scored candidate before pagination.
type ranked struct {
	node    int32
	id      string
	urs     float64
	sig     signals
	matched int
}

func (s *Searcher) compute(ctx context.Context, st *registry.State, req Request, monitor SearchMonitor) (*Response, error) {
	g := st.Graph
	in, err := s.interpreter.Interpret(ctx, st, req.Query, req.Scope)
	if err != nil {
		if errors.Is(err, query.ErrInvalidScope) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, err
	}
	monitor.AfterInterpretation(in)

	resp := emptyResponse(st, req)
	resp.QueryInterpretation = interpretationIDs(in)
	resp.Debug.EmptyQuery = in.Empty()
	resp.Debug.Ambiguous = in.Ambiguous
	resp.Debug.ANNUnavailable = in.ANNUnavailable
	resp.Debug.Warnings = append(resp.Debug.Warnings, in.Warnings...)

	keep := func(n int32) bool { return g.InScope(n, req.Scope) && !g.Excluded(n) }

	// Lexical matches, relaxed to any term when strict matching is thin.
	lexical := make(map[int32]lexicon.Match)
	if len(in.Keywords) > 0 {
		matches := g.Lexicon().Match(in.Keywords, lexicon.MatchAll, keep)
		relaxed := false
		if len(matches) < s.minStrictHits && len(in.Keywords) > 1 {
			matches = g.Lexicon().Match(in.Keywords, lexicon.MatchAny, keep)
			relaxed = true
		}
		resp.Debug.Relaxed = relaxed
		for _, m := range matches {
			lexical[m.Doc] = m
		}
		monitor.AfterLexicalMatch(matches, relaxed)
	}

	// Semantic neighbours of the query vector.
	semantic := make(map[int32]float64)
	semanticOn := false
	if in.Vector != nil && st.Vectors != nil {
		hits, err := st.Vectors.Search(ctx, in.Vector, s.semanticK, keep)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			resp.Debug.ANNUnavailable = true
			resp.Debug.Warnings = append(resp.Debug.Warnings, "semantic search unavailable: "+err.Error())
			s.logger.Warn("semantic search failed", "err", fmt.Errorf("%w: %w", core.ErrANNUnavailable, err))
		} else {
			semanticOn = true
			for _, h := range hits {
				semantic[h.Node] = clamp01(float64(h.Similarity))
			}
			monitor.AfterSemanticSearch(hits)
		}
	}

	seeds, seedNodes := s.seeds(in)
	resp.Debug.NumSeeds = len(seedNodes)

	var fp *relatedness.Fingerprint
	if len(seeds) > 0 {
		pctx, cancel := context.WithTimeout(ctx, s.pprBudget)
		fp, err = s.engine.Fingerprint(pctx, st, seeds)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fp = nil
			resp.Debug.Partial = true
			resp.Debug.Warnings = append(resp.Debug.Warnings, "personalized ranking unavailable: "+err.Error())
			s.logger.Warn("falling back to partial ranking", "seeds", len(seeds), "err", err)
		}
		monitor.AfterFingerprint(fp, resp.Debug.Partial)
	}
	if fp != nil {
		resp.Debug.MassCaptured = round(fp.MassCaptured, 4)
		resp.Debug.Approximate = fp.Approximate()
	}

	// Candidate pool. Named provisions and definitions are answered in the
	// interpretation; pseudo-seeds stay rankable.
	isSeed := make(map[int32]bool, len(seedNodes))
	for _, m := range slices.Concat(in.Provisions, in.Definitions) {
		isSeed[m.Node] = true
	}
	pool := make(map[int32]bool)
	consider := func(n int32) {
		if !isSeed[n] && keep(n) {
			pool[n] = true
		}
	}
	if fp != nil {
		for _, sc := range fp.Scores {
			consider(sc.Node)
		}
	} else if resp.Debug.Partial {
		for _, n := range seedNodes {
			for _, nb := range neighbours(g, n) {
				consider(nb)
			}
		}
	}
	for n := range lexical {
		consider(n)
	}
	for n := range semantic {
		consider(n)
	}

	on := active{
		personalized: fp != nil,
		semantic:     semanticOn,
		lexical:      len(in.Keywords) > 0,
	}
	maxBaseline := 0.0
	for n := range pool {
		maxBaseline = max(maxBaseline, st.BaselineOf(n))
	}
	total := 0.0
	if fp != nil {
		total = fp.Total()
	}

	ranking := make([]ranked, 0, len(pool))
	for n := range pool {
		var sig signals
		if maxBaseline > 0 {
			sig.baseline = st.BaselineOf(n) / maxBaseline
		}
		if fp != nil && total > 0 {
			sig.personalized = liftSignal(fp.Score(n)/total, st.BaselineOf(n))
		}
		sig.semantic = semantic[n]
		m, matched := lexical[n]
		if matched {
			sig.lexical = lexicalStrength(m, len(in.Keywords))
		}
		ranking = append(ranking, ranked{
			node:    n,
			id:      g.ID(n),
			urs:     s.weights.urs(sig, on),
			sig:     sig,
			matched: m.Matched,
		})
	}
	slices.SortFunc(ranking, func(a, b ranked) int {
		if c := cmp.Compare(b.urs, a.urs); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	resp.Pagination.Total = len(ranking)
	lo := min(req.Offset, len(ranking))
	hi := min(req.Offset+req.K, len(ranking))
	if hi < len(ranking) {
		next := hi
		resp.Pagination.NextOffset = &next
	}
	for _, r := range ranking[lo:hi] {
		resp.Results = append(resp.Results, Result{
			ID:       r.id,
			RefID:    g.RefID(r.node),
			Title:    g.Title(r.node),
			Type:     string(g.Type(r.node)),
			Act:      g.Act(r.node),
			ScoreURS: r.urs,
			Snippet:  snippet(cmp.Or(g.Content(r.node), g.Title(r.node)), in.Keywords),
			Why:      s.weights.explain(g, r.node, seedNodes, r.sig, r.matched, len(in.Keywords)),
		})
	}
	return resp, nil
}

// seeds builds the walk's seed set: explicit provisions, definitions and
// semantic pseudo-seeds, each kind with its own weight.
func (s *Searcher) seeds(in *query.Interpretation) ([]relatedness.Seed, []int32) {
	var (
		seeds []relatedness.Seed
		nodes []int32
	)
	seen := make(map[int32]bool)
	add := func(ms []query.Match, w float64) {
		for _, m := range ms {
			seeds = append(seeds, relatedness.Seed{Node: m.Node, Weight: w})
			if !seen[m.Node] {
				seen[m.Node] = true
				nodes = append(nodes, m.Node)
			}
		}
	}
	add(in.Provisions, s.provisionSeed)
	add(in.Definitions, s.definitionSeed)
	add(in.PseudoSeeds, s.pseudoSeed)
	return seeds, nodes
}

// neighbours lists the one-hop neighbourhood of n over every edge kind.
func neighbours(g *graph.Snapshot, n int32) []int32 {
	var out []int32
	out = append(out, g.CitationsOut(n)...)
	out = append(out, g.CitationsIn(n)...)
	out = append(out, g.TermsOut(n)...)
	out = append(out, g.TermsIn(n)...)
	out = append(out, g.Children(n)...)
	if p := g.Parent(n); p != graph.NoNode {
		out = append(out, p)
	}
	return out
}

func interpretationIDs(in *query.Interpretation) Interpretation {
	ids := func(ms []query.Match) []string {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}
	return Interpretation{
		Provisions:  ids(in.Provisions),
		Definitions: ids(in.Definitions),
		Keywords:    append([]string{}, in.Keywords...),
		PseudoSeeds: ids(in.PseudoSeeds),
	}
}

// Detail returns the full record of a provision by internal id or ref id.
// Excluded provisions resolve like any other.
func (s *Searcher) Detail(ctx context.Context, id string) (*Detail, error) {
	st, err := s.source.Current()
	if err != nil {
		return nil, err
	}
	_, span := tracer.Start(ctx, "search.Detail", trace.WithAttributes(attribute.String("id", id)))
	defer span.End()

	g := st.Graph
	n, ok := g.Lookup(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	node := g.Node(n)
	deg := g.Degree(n)
	d := &Detail{
		ID:           node.ID,
		RefID:        node.RefID,
		Title:        node.Title,
		Type:         string(node.Type),
		Act:          node.Act,
		Path:         node.Path,
		Content:      node.Content,
		Children:     []string{},
		Baseline:     st.BaselineOf(n),
		CitationsOut: deg.CitationsOut,
		CitationsIn:  deg.CitationsIn,
		TermsUsed:    deg.TermsOut,
		TermUsers:    deg.TermsIn,
		NumChildren:  deg.Children,
		Excluded:     node.Excluded,
		Citations:    []CitationRef{},
		GraphVersion: st.Version,
	}
	if node.Parent != graph.NoNode {
		d.Parent = g.ID(node.Parent)
	}
	for _, c := range g.Children(n) {
		d.Children = append(d.Children, g.ID(c))
	}
	for _, c := range g.CitationDetails(n) {
		d.Citations = append(d.Citations, CitationRef{
			ID:      g.ID(c.Target),
			RefID:   g.RefID(c.Target),
			Title:   g.Title(c.Target),
			Snippet: c.Snippet,
		})
	}
	return d, nil
}

// Acts lists the catalog acts with their node counts in the current graph.
func (s *Searcher) Acts(ctx context.Context) ([]ActSummary, error) {
	st, err := s.source.Current()
	if err != nil {
		return nil, err
	}
	g := st.Graph
	counts := make(map[string]int)
	for i := range g.Len() {
		counts[g.Act(int32(i))]++
	}
	acts := g.Catalog().Acts()
	out := make([]ActSummary, 0, len(acts))
	for _, a := range acts {
		out = append(out, ActSummary{
			ID:      a.ID,
			Title:   a.Title,
			Default: a.ID == g.Catalog().DefaultAct(),
			Nodes:   counts[a.ID],
		})
	}
	return out, nil
}
