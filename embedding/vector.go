package embedding

import (
	"fmt"

	"github.com/poiesic/lexgraph/core"
	"github.com/viant/vec/search"
)

// Normalize scales a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	result := make([]float32, len(v))
	magnitude := search.Float32s(v).Magnitude()
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// Mean averages the normalized chunk vectors and normalizes the result.
func Mean(chunks [][]float32) ([]float32, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", core.ErrInvalidVector)
	}
	dim := len(chunks[0])
	sum := make([]float32, dim)
	for _, c := range chunks {
		if err := core.ValidateVector(c, dim); err != nil {
			return nil, err
		}
		for i, x := range Normalize(c) {
			sum[i] += x
		}
	}
	return Normalize(sum), nil
}

// Similarity returns the cosine similarity of a and b.
// Zero vectors have similarity 0 with everything.
func Similarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	if search.Float32s(a).Magnitude() == 0 || search.Float32s(b).Magnitude() == 0 {
		return 0
	}
	return 1 - search.Float32s(a).CosineDistance(b)
}
