// Package embedding holds node vectors and the nearest-neighbour indexes
// searched by the query and relatedness layers.
package embedding

import (
	"cmp"
	"context"
	"slices"
)

// Hit is one nearest-neighbour result.
type Hit struct {
	Node       int32
	Similarity float32
}

// Index answers nearest-neighbour queries over node vectors addressed by
// graph node index. Implementations are immutable and safe for concurrent use.
type Index interface {
	// Search returns up to k nodes most similar to vec, best first.
	// Nodes rejected by keep (when non-nil) are never returned.
	Search(ctx context.Context, vec []float32, k int, keep func(node int32) bool) ([]Hit, error)
	// Vector returns the normalized vector of a node, or nil when it has none.
	Vector(node int32) []float32
	// Len returns the number of indexed vectors.
	Len() int
	// Dim returns the vector dimension, 0 when empty.
	Dim() int
}

// store holds normalized vectors by node index.
type store struct {
	vectors [][]float32
	count   int
	dim     int
}

func newStore(vectors [][]float32) (store, error) {
	s := store{vectors: make([][]float32, len(vectors))}
	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if s.dim == 0 {
			s.dim = len(v)
		}
		if len(v) != s.dim {
			return store{}, ErrDimensionMismatch
		}
		s.vectors[i] = Normalize(v)
		s.count++
	}
	return s, nil
}

func (s *store) Vector(node int32) []float32 {
	if node < 0 || int(node) >= len(s.vectors) {
		return nil
	}
	return s.vectors[node]
}

func (s *store) Len() int { return s.count }

func (s *store) Dim() int { return s.dim }

// sortHits orders hits by similarity descending, then node ascending.
func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Node, b.Node)
	})
}
