package baseline

import (
	"context"
	"testing"

	"github.com/poiesic/lexgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph(t *testing.T) *graph.Snapshot {
	t.Helper()
	g, err := graph.Build(graph.SampleProvisions())
	require.NoError(t, err)
	return g
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestRunConverges(t *testing.T) {
	g := sampleGraph(t)
	a, err := NewAnalyzer()
	require.NoError(t, err)

	res, err := a.Run(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.False(t, res.Degraded)
	assert.Len(t, res.Scores, g.Len())
	assert.InDelta(t, 1.0, sum(res.Scores), 1e-9)
	assert.InDelta(t, 1.0, sum(res.Raw), 1e-6)

	for i, s := range res.Scores {
		assert.GreaterOrEqual(t, s, 0.0)
		if g.Excluded(int32(i)) {
			assert.Zero(t, s, "excluded node %s", g.ID(int32(i)))
			assert.Positive(t, res.Raw[i], "raw scores keep excluded nodes")
		}
	}

	cited, _ := g.Lookup("ITAA1997:Section:6-5")
	uncited, _ := g.Lookup("ITAA1997:Section:8-1")
	assert.Greater(t, res.Scores[cited], res.Scores[uncited])
}

func TestRunIsDeterministic(t *testing.T) {
	g := sampleGraph(t)
	a, err := NewAnalyzer()
	require.NoError(t, err)

	first, err := a.Run(context.Background(), g)
	require.NoError(t, err)
	second, err := a.Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, first.Scores, second.Scores)
	assert.Equal(t, first.Iterations, second.Iterations)
}

func TestRunNonConvergenceFallsBackToUniform(t *testing.T) {
	g := sampleGraph(t)
	a, err := NewAnalyzer(WithMaxIterations(1))
	require.NoError(t, err)

	res, err := a.Run(context.Background(), g)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.True(t, res.Degraded)
	assert.InDelta(t, 1.0, sum(res.Scores), 1e-9)

	expected := 1.0 / float64(g.Len()-g.Stats().Excluded)
	for i, s := range res.Scores {
		if g.Excluded(int32(i)) {
			assert.Zero(t, s)
			continue
		}
		assert.InDelta(t, expected, s, 1e-12)
	}
}

func TestRunHonoursContext(t *testing.T) {
	g := sampleGraph(t)
	a, err := NewAnalyzer()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Run(ctx, g)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"damping zero", WithDamping(0)},
		{"damping one", WithDamping(1)},
		{"tolerance", WithTolerance(0)},
		{"iterations", WithMaxIterations(0)},
		{"weights", WithEdgeWeights(0, 0)},
		{"negative weight", WithEdgeWeights(-1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnalyzer(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestCitationOnlyWeights(t *testing.T) {
	g := sampleGraph(t)
	a, err := NewAnalyzer(WithEdgeWeights(1, 0), WithLogger(nil))
	require.NoError(t, err)
	res, err := a.Run(context.Background(), g)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum(res.Scores), 1e-9)
}
