package embedding

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/poiesic/lexgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{name: "unit vector remains unchanged", input: []float32{1, 0, 0}, expected: []float32{1, 0, 0}},
		{name: "scale non-unit vector", input: []float32{3, 4}, expected: []float32{0.6, 0.8}},
		{name: "zero vector stays zero", input: []float32{0, 0}, expected: []float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			require.Len(t, result, len(tt.expected))
			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6)
			}
		})
	}
}

func TestMean(t *testing.T) {
	mean, err := Mean([][]float32{{2, 0}, {0, 5}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, magnitude(mean), 1e-6)
	assert.InDelta(t, mean[0], mean[1], 1e-6, "chunks weigh equally after normalization")

	_, err = Mean(nil)
	assert.ErrorIs(t, err, core.ErrInvalidVector)
	_, err = Mean([][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, core.ErrInvalidVector)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, Similarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, Similarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Similarity([]float32{1}, []float32{1, 0}))
}

func TestChunker(t *testing.T) {
	words := make([]string, 450)
	for i := range words {
		words[i] = "w"
	}
	text := strings.Join(words, " ")

	chunks := DefaultChunker().Split(text)
	// Windows start at 0, 160, 320; the last reaches the end.
	require.Len(t, chunks, 3)
	assert.Len(t, strings.Fields(chunks[0]), 200)
	assert.Len(t, strings.Fields(chunks[2]), 130)

	assert.Equal(t, []string{"short text"}, DefaultChunker().Split("  short \n text "))
	assert.Nil(t, DefaultChunker().Split("   "))

	assert.ErrorIs(t, Chunker{Size: 10, Overlap: 10}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Chunker{}.Validate(), ErrInvalidConfig)
	assert.NoError(t, DefaultChunker().Validate())
}

func randomVectors(n, dim int, seed uint64) [][]float32 {
	r := rand.New(rand.NewPCG(seed, seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func TestFlatSearch(t *testing.T) {
	vectors := [][]float32{{1, 0}, nil, {0, 1}, {0.9, 0.1}}
	f, err := NewFlat(vectors)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, 2, f.Dim())
	assert.Nil(t, f.Vector(1))

	hits, err := f.Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int32(0), hits[0].Node)
	assert.Equal(t, int32(3), hits[1].Node)

	hits, err = f.Search(context.Background(), []float32{1, 0}, 5, func(n int32) bool { return n != 0 })
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, int32(3), hits[0].Node)

	_, err = f.Search(context.Background(), []float32{1, 0, 0}, 2, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewFlat([][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestHNSWRecallAgainstFlat(t *testing.T) {
	const k = 10
	vectors := randomVectors(600, 16, 7)
	flat, err := NewFlat(vectors)
	require.NoError(t, err)
	hnsw, err := NewHNSW(vectors)
	require.NoError(t, err)
	assert.Equal(t, flat.Len(), hnsw.Len())

	queries := randomVectors(25, 16, 99)
	found, total := 0, 0
	for _, q := range queries {
		exact, err := flat.Search(context.Background(), q, k, nil)
		require.NoError(t, err)
		approx, err := hnsw.Search(context.Background(), q, k, nil)
		require.NoError(t, err)
		require.Len(t, approx, k)

		want := make(map[int32]bool, k)
		for _, h := range exact {
			want[h.Node] = true
		}
		for _, h := range approx {
			if want[h.Node] {
				found++
			}
		}
		total += k
	}
	recall := float64(found) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.9)
}

func TestHNSWDeterministic(t *testing.T) {
	vectors := randomVectors(200, 8, 3)
	a, err := NewHNSW(vectors, WithSeed(11))
	require.NoError(t, err)
	b, err := NewHNSW(vectors, WithSeed(11))
	require.NoError(t, err)

	q := randomVectors(1, 8, 5)[0]
	ha, err := a.Search(context.Background(), q, 5, nil)
	require.NoError(t, err)
	hb, err := b.Search(context.Background(), q, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHNSWFilteredSearch(t *testing.T) {
	vectors := randomVectors(300, 8, 21)
	h, err := NewHNSW(vectors, WithEfSearch(8))
	require.NoError(t, err)

	// Only multiples of 50 pass; the search must widen to find them.
	keep := func(n int32) bool { return n%50 == 0 }
	hits, err := h.Search(context.Background(), vectors[0], 3, keep)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, int32(0), hits[0].Node)
	for _, hit := range hits {
		assert.True(t, keep(hit.Node))
	}
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}
}

func TestHNSWEmptyAndOptions(t *testing.T) {
	h, err := NewHNSW([][]float32{nil, nil})
	require.NoError(t, err)
	hits, err := h.Search(context.Background(), []float32{1}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = NewHNSW(nil, WithM(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewHNSW(nil, WithEfSearch(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewHNSW(nil, WithEfConstruction(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHNSWSimilarityMatchesCosine(t *testing.T) {
	vectors := randomVectors(100, 8, 13)
	h, err := NewHNSW(vectors)
	require.NoError(t, err)

	q := randomVectors(1, 8, 17)[0]
	scaled := make([]float32, len(q))
	for i, x := range q {
		scaled[i] = 3 * x
	}
	hits, err := h.Search(context.Background(), scaled, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	for _, hit := range hits {
		assert.InDelta(t, Similarity(q, vectors[hit.Node]), hit.Similarity, 1e-5)
	}

	plain, err := h.Search(context.Background(), q, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, plain[0].Node, hits[0].Node)
}
