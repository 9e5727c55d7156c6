package embedding

import (
	"context"
)

// Flat is an exact index that compares the query against every vector.
type Flat struct {
	store
}

var _ Index = (*Flat)(nil)

// NewFlat indexes vectors by node index. Nil entries are nodes without a vector.
func NewFlat(vectors [][]float32) (*Flat, error) {
	s, err := newStore(vectors)
	if err != nil {
		return nil, err
	}
	return &Flat{store: s}, nil
}

// Search scans every vector.
func (f *Flat) Search(ctx context.Context, vec []float32, k int, keep func(node int32) bool) ([]Hit, error) {
	if f.count == 0 || k <= 0 {
		return nil, nil
	}
	if len(vec) != f.dim {
		return nil, ErrDimensionMismatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := Normalize(vec)

	var hits []Hit
	for i, v := range f.vectors {
		if v == nil {
			continue
		}
		node := int32(i)
		if keep != nil && !keep(node) {
			continue
		}
		hits = append(hits, Hit{Node: node, Similarity: dot(q, v)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// dot is cosine similarity for unit vectors.
func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
