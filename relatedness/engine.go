// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package relatedness computes personalized importance ("fingerprints")
// around a seed set on a bounded local subgraph of a published graph.
package relatedness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lexgraph/cache"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/metrics"
	"github.com/poiesic/lexgraph/registry"
)

var tracer = otel.Tracer("lexgraph/relatedness")

// Defaults for expansion, weighting and the walk.
const (
	DefaultMaxDepth      = 2
	DefaultMaxNodes      = 500
	DefaultTermFanOut    = 200
	DefaultSemanticK     = 20
	DefaultAlpha         = 0.45
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 100
	DefaultTopK          = 200
	DefaultCacheCapacity = 4096

	DefaultCitationWeight    = 0.45
	DefaultCitedByFactor     = 0.5
	DefaultHierarchyWeight   = 0.20
	DefaultParentChildWeight = 1.0
	DefaultSiblingWeight     = 0.8
	DefaultTermWeight        = 0.20
	DefaultSemanticWeight    = 0.05
)

// Engine computes and caches fingerprints.
type Engine struct {
	maxDepth      int
	maxNodes      int
	termFanOut    int
	semanticK     int
	alpha         float64
	tolerance     float64
	maxIterations int
	topK          int
	cacheCapacity int

	citationWeight    float64
	citedByFactor     float64
	hierarchyWeight   float64
	parentChildWeight float64
	siblingWeight     float64
	termWeight        float64
	semanticWeight    float64

	cache   *cache.Cache[*Fingerprint]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidParameter, name, v)
	}
	return nil
}

// WithMaxDepth sets the number of expansion layers.
func WithMaxDepth(d int) Option {
	return func(e *Engine) error {
		e.maxDepth = d
		return positive("max depth", d)
	}
}

// WithMaxNodes sets the node budget of the expanded subgraph.
func WithMaxNodes(n int) Option {
	return func(e *Engine) error {
		e.maxNodes = n
		return positive("max nodes", n)
	}
}

// WithTermFanOut caps how many users of one definition are expanded.
func WithTermFanOut(n int) Option {
	return func(e *Engine) error {
		e.termFanOut = n
		return positive("term fan-out", n)
	}
}

// WithSemanticK sets the number of ANN neighbours taken per seed. Zero disables semantic edges.
func WithSemanticK(k int) Option {
	return func(e *Engine) error {
		if k < 0 {
			return fmt.Errorf("%w: semantic k must not be negative", ErrInvalidParameter)
		}
		e.semanticK = k
		return nil
	}
}

// WithRestart sets the probability of teleporting back to the seeds.
func WithRestart(alpha float64) Option {
	return func(e *Engine) error {
		if alpha <= 0 || alpha >= 1 {
			return fmt.Errorf("%w: restart must be in (0,1), got %v", ErrInvalidParameter, alpha)
		}
		e.alpha = alpha
		return nil
	}
}

// WithTolerance sets the L1 convergence threshold of the walk.
func WithTolerance(tol float64) Option {
	return func(e *Engine) error {
		if tol <= 0 {
			return fmt.Errorf("%w: tolerance must be positive", ErrInvalidParameter)
		}
		e.tolerance = tol
		return nil
	}
}

// WithMaxIterations caps the walk.
func WithMaxIterations(n int) Option {
	return func(e *Engine) error {
		e.maxIterations = n
		return positive("max iterations", n)
	}
}

// WithTopK sets how many nodes a fingerprint keeps.
func WithTopK(k int) Option {
	return func(e *Engine) error {
		e.topK = k
		return positive("top k", k)
	}
}

// WithCacheCapacity bounds the fingerprint cache.
func WithCacheCapacity(n int) Option {
	return func(e *Engine) error {
		e.cacheCapacity = n
		return positive("cache capacity", n)
	}
}

// ViewWeights are the mixing weights of the edge families.
type ViewWeights struct {
	Citation    float64 `yaml:"citation"`
	CitedBy     float64 `yaml:"cited_by"` // multiplier applied to Citation for incoming citations
	Hierarchy   float64 `yaml:"hierarchy"`
	ParentChild float64 `yaml:"parent_child"`
	Sibling     float64 `yaml:"sibling"`
	Term        float64 `yaml:"term"`
	Semantic    float64 `yaml:"semantic"`
}

// DefaultViewWeights returns the default mixing weights.
func DefaultViewWeights() ViewWeights {
	return ViewWeights{
		Citation:    DefaultCitationWeight,
		CitedBy:     DefaultCitedByFactor,
		Hierarchy:   DefaultHierarchyWeight,
		ParentChild: DefaultParentChildWeight,
		Sibling:     DefaultSiblingWeight,
		Term:        DefaultTermWeight,
		Semantic:    DefaultSemanticWeight,
	}
}

// WithViewWeights replaces the edge mixing weights.
func WithViewWeights(w ViewWeights) Option {
	return func(e *Engine) error {
		for _, v := range []float64{w.Citation, w.CitedBy, w.Hierarchy, w.ParentChild, w.Sibling, w.Term, w.Semantic} {
			if v < 0 {
				return fmt.Errorf("%w: view weights must not be negative", ErrInvalidParameter)
			}
		}
		e.citationWeight = w.Citation
		e.citedByFactor = w.CitedBy
		e.hierarchyWeight = w.Hierarchy
		e.parentChildWeight = w.ParentChild
		e.siblingWeight = w.Sibling
		e.termWeight = w.Term
		e.semanticWeight = w.Semantic
		return nil
	}
}

// WithMetrics records fingerprint and cache metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates an engine with its own fingerprint cache.
func NewEngine(opts ...Option) (*Engine, error) {
	w := DefaultViewWeights()
	e := &Engine{
		maxDepth:          DefaultMaxDepth,
		maxNodes:          DefaultMaxNodes,
		termFanOut:        DefaultTermFanOut,
		semanticK:         DefaultSemanticK,
		alpha:             DefaultAlpha,
		tolerance:         DefaultTolerance,
		maxIterations:     DefaultMaxIterations,
		topK:              DefaultTopK,
		cacheCapacity:     DefaultCacheCapacity,
		citationWeight:    w.Citation,
		citedByFactor:     w.CitedBy,
		hierarchyWeight:   w.Hierarchy,
		parentChildWeight: w.ParentChild,
		siblingWeight:     w.Sibling,
		termWeight:        w.Term,
		semanticWeight:    w.Semantic,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "relatedness")

	c, err := cache.New[*Fingerprint](
		cache.WithName("fingerprint"),
		cache.WithCapacity(e.cacheCapacity),
		cache.WithMetrics(e.metrics),
		cache.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}
	e.cache = c
	return e, nil
}

// Close releases the fingerprint cache.
func (e *Engine) Close() {
	e.cache.Close()
}

// normalizeSeeds merges duplicates, drops unusable seeds and scales weights to sum to 1.
func normalizeSeeds(st *registry.State, seeds []Seed) []Seed {
	merged := make(map[int32]float64, len(seeds))
	for _, s := range seeds {
		if s.Node < 0 || int(s.Node) >= st.Graph.Len() || !(s.Weight > 0) {
			continue
		}
		merged[s.Node] += s.Weight
	}
	out := make([]Seed, 0, len(merged))
	total := 0.0
	for n, w := range merged {
		out = append(out, Seed{Node: n, Weight: w})
		total += w
	}
	slices.SortFunc(out, func(a, b Seed) int { return int(a.Node - b.Node) })
	for i := range out {
		out[i].Weight /= total
	}
	return out
}

// SeedKey returns the cache key of a seed set; input order does not matter.
func SeedKey(st *registry.State, seeds []Seed) core.ID {
	norm := normalizeSeeds(st, seeds)
	m := make(map[string]float64, len(norm))
	for _, s := range norm {
		m[st.Graph.ID(s.Node)] = s.Weight
	}
	return core.SeedSetHash(m)
}

// Fingerprint returns the personalized importance around seeds at the
// version of st. Results are cached per seed set and version; a
// non-converged walk is returned and cached with Converged=false.
func (e *Engine) Fingerprint(ctx context.Context, st *registry.State, seeds []Seed) (*Fingerprint, error) {
	if st == nil || st.Graph == nil {
		return nil, core.ErrGraphNotReady
	}
	norm := normalizeSeeds(st, seeds)
	if len(norm) == 0 {
		return nil, ErrNoSeeds
	}
	key := SeedKey(st, norm)

	ctx, span := tracer.Start(ctx, "relatedness.Fingerprint",
		trace.WithAttributes(
			attribute.Int("seeds", len(norm)),
			attribute.Int64("graph_version", int64(st.Version)),
		),
	)
	defer span.End()

	fp, hit, err := e.cache.GetOrCompute(ctx, key.String(), st.Version, func(ctx context.Context) (*Fingerprint, bool, error) {
		fp, err := e.compute(ctx, st, norm, key)
		return fp, err == nil, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fingerprint failed")
		return nil, err
	}
	if fp.Version != st.Version {
		err := fmt.Errorf("%w: fingerprint at version %d served for %d", core.ErrCacheInconsistency, fp.Version, st.Version)
		e.logger.Warn("discarding fingerprint", "error", err)
		fp, err = e.compute(ctx, st, norm, key)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(
		attribute.Bool("cache_hit", hit),
		attribute.Bool("converged", fp.Converged),
		attribute.Float64("mass_captured", fp.MassCaptured),
	)
	return fp, nil
}

func (e *Engine) compute(ctx context.Context, st *registry.State, seeds []Seed, key core.ID) (*Fingerprint, error) {
	start := time.Now()
	sg, err := e.expand(ctx, st, seeds)
	if err != nil {
		return nil, err
	}
	rows, capture := e.transitions(st.Graph, sg)

	teleport := make([]float64, len(sg.nodes))
	for _, s := range seeds {
		teleport[sg.local[s.Node]] = s.Weight
	}
	res, err := e.walk(ctx, rows, capture, teleport)
	if err != nil {
		return nil, err
	}

	fp := newFingerprint(st.Version, key, e.rank(st.Graph, sg, seeds, res.scores))
	fp.MassCaptured = res.mass
	fp.Converged = res.converged
	fp.Iterations = res.iterations
	fp.SubgraphSize = len(sg.nodes)

	duration := time.Since(start)
	e.metrics.RecordFingerprint(fp.Converged, fp.MassCaptured, duration)
	if !fp.Converged {
		e.logger.Warn("fingerprint approximate",
			"error", core.ErrImportanceNonConvergence,
			"iterations", fp.Iterations,
			"subgraph", fp.SubgraphSize)
	}
	e.logger.Debug("fingerprint computed",
		"seeds", len(seeds),
		"subgraph", fp.SubgraphSize,
		"iterations", fp.Iterations,
		"mass_captured", fp.MassCaptured,
		"duration", duration)
	return fp, nil
}
