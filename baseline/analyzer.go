// Package baseline computes global, query-independent importance over the
// citation and hierarchy graph of a snapshot.
package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/graph"
)

const (
	DefaultDamping         = 0.85
	DefaultTolerance       = 1e-9
	DefaultMaxIterations   = 200
	DefaultCitationWeight  = 1.0
	DefaultHierarchyWeight = 0.3
)

// Result holds the outcome of one baseline run.
type Result struct {
	// Scores is zero on excluded nodes and sums to 1 over the rest.
	Scores []float64
	// Raw is the stationary distribution over every node before exclusion.
	Raw        []float64
	Iterations int
	Delta      float64
	Converged  bool
	// Degraded is set when Scores is the uniform fallback.
	Degraded bool
}

// Analyzer runs power iteration over a snapshot.
type Analyzer struct {
	damping         float64
	tolerance       float64
	maxIterations   int
	citationWeight  float64
	hierarchyWeight float64
	logger          *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer) error

// WithDamping sets the probability of following an edge rather than teleporting.
func WithDamping(d float64) Option {
	return func(a *Analyzer) error {
		if d <= 0 || d >= 1 {
			return fmt.Errorf("%w: damping must be in (0,1), got %v", ErrInvalidParameter, d)
		}
		a.damping = d
		return nil
	}
}

// WithTolerance sets the L1 convergence threshold.
func WithTolerance(tol float64) Option {
	return func(a *Analyzer) error {
		if tol <= 0 {
			return fmt.Errorf("%w: tolerance must be positive", ErrInvalidParameter)
		}
		a.tolerance = tol
		return nil
	}
}

// WithMaxIterations caps the number of power iterations.
func WithMaxIterations(n int) Option {
	return func(a *Analyzer) error {
		if n <= 0 {
			return fmt.Errorf("%w: max iterations must be positive", ErrInvalidParameter)
		}
		a.maxIterations = n
		return nil
	}
}

// WithEdgeWeights sets the relative weights of citation and hierarchy edges.
func WithEdgeWeights(citation, hierarchy float64) Option {
	return func(a *Analyzer) error {
		if citation < 0 || hierarchy < 0 || citation+hierarchy == 0 {
			return fmt.Errorf("%w: edge weights must be non-negative and not both zero", ErrInvalidParameter)
		}
		a.citationWeight = citation
		a.hierarchyWeight = hierarchy
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAnalyzer creates an analyzer with default parameters.
func NewAnalyzer(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		damping:         DefaultDamping,
		tolerance:       DefaultTolerance,
		maxIterations:   DefaultMaxIterations,
		citationWeight:  DefaultCitationWeight,
		hierarchyWeight: DefaultHierarchyWeight,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "baseline")
	return a, nil
}

// Run computes baseline importance for every node of g.
// Only context cancellation is returned as an error; non-convergence yields a
// degraded uniform result.
func (a *Analyzer) Run(ctx context.Context, g *graph.Snapshot) (*Result, error) {
	n := g.Len()
	if n == 0 {
		return &Result{Converged: true}, nil
	}

	outWeight := make([]float64, n)
	for i := range n {
		u := int32(i)
		w := a.citationWeight * float64(len(g.CitationsOut(u)))
		w += a.hierarchyWeight * float64(len(g.Children(u)))
		if g.Parent(u) != graph.NoNode {
			w += a.hierarchyWeight
		}
		outWeight[i] = w
	}

	uniform := 1.0 / float64(n)
	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = uniform
	}

	res := &Result{}
	for iter := 1; iter <= a.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dangling := 0.0
		for i := range next {
			next[i] = 0
		}
		for i := range n {
			if outWeight[i] == 0 {
				dangling += rank[i]
				continue
			}
			u := int32(i)
			share := a.damping * rank[i] / outWeight[i]
			for _, v := range g.CitationsOut(u) {
				next[v] += share * a.citationWeight
			}
			for _, v := range g.Children(u) {
				next[v] += share * a.hierarchyWeight
			}
			if p := g.Parent(u); p != graph.NoNode {
				next[p] += share * a.hierarchyWeight
			}
		}

		base := (1-a.damping)*uniform + a.damping*dangling*uniform
		delta := 0.0
		for i := range next {
			next[i] += base
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		res.Iterations = iter
		res.Delta = delta
		if math.IsNaN(delta) {
			break
		}
		if delta < a.tolerance {
			res.Converged = true
			break
		}
	}

	res.Raw = rank
	if !res.Converged {
		err := fmt.Errorf("%w: delta %.3g after %d iterations", core.ErrImportanceNonConvergence, res.Delta, res.Iterations)
		a.logger.Warn("baseline degraded to uniform", "error", err)
		res.Degraded = true
		res.Scores = uniformScores(g)
		return res, nil
	}

	res.Scores = restrict(g, rank)
	a.logger.Debug("baseline converged", "iterations", res.Iterations, "delta", res.Delta)
	return res, nil
}

// restrict zeroes excluded nodes and renormalizes the rest to sum to 1.
func restrict(g *graph.Snapshot, raw []float64) []float64 {
	scores := make([]float64, len(raw))
	total := 0.0
	for i, v := range raw {
		if g.Excluded(int32(i)) {
			continue
		}
		scores[i] = v
		total += v
	}
	if total <= 0 {
		return uniformScores(g)
	}
	for i := range scores {
		scores[i] /= total
	}
	return scores
}

func uniformScores(g *graph.Snapshot) []float64 {
	scores := make([]float64, g.Len())
	kept := 0
	for i := range scores {
		if !g.Excluded(int32(i)) {
			kept++
		}
	}
	if kept == 0 {
		return scores
	}
	for i := range scores {
		if !g.Excluded(int32(i)) {
			scores[i] = 1 / float64(kept)
		}
	}
	return scores
}
