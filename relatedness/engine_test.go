package relatedness

import (
	"context"
	"testing"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState(t *testing.T, version uint64) *registry.State {
	t.Helper()
	g, err := graph.Build(graph.SampleProvisions())
	require.NoError(t, err)
	return &registry.State{Version: version, Graph: g, Baseline: make([]float64, g.Len())}
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func node(t *testing.T, st *registry.State, id string) int32 {
	t.Helper()
	i, ok := st.Graph.Lookup(id)
	require.True(t, ok, id)
	return i
}

func TestFingerprintBasics(t *testing.T) {
	st := sampleState(t, 1)
	e := newEngine(t)
	seed := node(t, st, "ITAA1997:Section:6-5")

	fp, err := e.Fingerprint(context.Background(), st, []Seed{{Node: seed, Weight: 1}})
	require.NoError(t, err)
	assert.True(t, fp.Converged)
	assert.Equal(t, uint64(1), fp.Version)
	assert.Greater(t, fp.MassCaptured, 0.0)
	assert.LessOrEqual(t, fp.MassCaptured, 1.0+1e-12)
	assert.LessOrEqual(t, fp.Total(), 1.0+1e-12)
	require.NotEmpty(t, fp.Scores)

	for i, s := range fp.Scores {
		assert.NotEqual(t, seed, s.Node, "seeds are never ranked")
		assert.False(t, st.Graph.Excluded(s.Node), "excluded nodes are never ranked")
		assert.Positive(t, s.Score)
		if i > 0 {
			prev := fp.Scores[i-1]
			assert.True(t, prev.Score > s.Score || (prev.Score == s.Score && prev.Node < s.Node))
		}
	}

	assert.Positive(t, fp.Score(node(t, st, "ITAA1997:Section:6-10")))
	assert.Zero(t, fp.Score(node(t, st, "ITAA1997:Section:995-1")))
}

func TestFingerprintCachedPerVersion(t *testing.T) {
	e := newEngine(t)
	v1 := sampleState(t, 1)
	a := node(t, v1, "ITAA1997:Section:6-5")
	b := node(t, v1, "ITAA1997:Section:8-1")

	first, err := e.Fingerprint(context.Background(), v1, []Seed{{Node: a, Weight: 1}, {Node: b, Weight: 1}})
	require.NoError(t, err)
	again, err := e.Fingerprint(context.Background(), v1, []Seed{{Node: b, Weight: 2}, {Node: a, Weight: 2}})
	require.NoError(t, err)
	assert.Same(t, first, again, "seed order and scale do not change the key")

	v2 := sampleState(t, 2)
	next, err := e.Fingerprint(context.Background(), v2, []Seed{{Node: a, Weight: 1}, {Node: b, Weight: 1}})
	require.NoError(t, err)
	assert.NotSame(t, first, next)
	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, first.Scores, next.Scores, "same graph yields the same ranking")
}

func TestFingerprintWeightsMatter(t *testing.T) {
	e := newEngine(t)
	st := sampleState(t, 1)
	a := node(t, st, "ITAA1997:Section:6-5")
	b := node(t, st, "ITAA1936:Section:251S")

	even, err := e.Fingerprint(context.Background(), st, []Seed{{Node: a, Weight: 1}, {Node: b, Weight: 1}})
	require.NoError(t, err)
	skewed, err := e.Fingerprint(context.Background(), st, []Seed{{Node: a, Weight: 3}, {Node: b, Weight: 1}})
	require.NoError(t, err)
	assert.NotEqual(t, even.SeedHash, skewed.SeedHash)
}

func TestFingerprintBudget(t *testing.T) {
	st := sampleState(t, 1)
	e := newEngine(t, WithMaxNodes(3), WithSemanticK(0))
	fp, err := e.Fingerprint(context.Background(), st, []Seed{{Node: node(t, st, "ITAA1997:Section:6-5"), Weight: 1}})
	require.NoError(t, err)
	assert.LessOrEqual(t, fp.SubgraphSize, 3)
	assert.LessOrEqual(t, len(fp.Scores), 2)
}

func TestFingerprintClosedSubgraphCapturesAllMass(t *testing.T) {
	st := sampleState(t, 1)
	e := newEngine(t, WithMaxDepth(20), WithMaxNodes(1000), WithSemanticK(0))
	fp, err := e.Fingerprint(context.Background(), st, []Seed{{Node: node(t, st, "ITAA1997:Section:6-1"), Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, st.Graph.Len(), fp.SubgraphSize)
	assert.InDelta(t, 1.0, fp.MassCaptured, 1e-9)
}

func TestFingerprintNonConvergenceIsApproximate(t *testing.T) {
	st := sampleState(t, 1)
	e := newEngine(t, WithMaxIterations(1))
	fp, err := e.Fingerprint(context.Background(), st, []Seed{{Node: node(t, st, "ITAA1997:Section:6-5"), Weight: 1}})
	require.NoError(t, err)
	assert.False(t, fp.Converged)
	assert.True(t, fp.Approximate())
	assert.Equal(t, 1, fp.Iterations)
}

func TestFingerprintSeeds(t *testing.T) {
	st := sampleState(t, 1)
	e := newEngine(t)

	_, err := e.Fingerprint(context.Background(), st, nil)
	assert.ErrorIs(t, err, ErrNoSeeds)

	_, err = e.Fingerprint(context.Background(), st, []Seed{{Node: 0, Weight: 0}, {Node: 9999, Weight: 1}})
	assert.ErrorIs(t, err, ErrNoSeeds)
}

func TestFingerprintHonoursContext(t *testing.T) {
	st := sampleState(t, 1)
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Fingerprint(ctx, st, []Seed{{Node: 0, Weight: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprintSemanticNeighbours(t *testing.T) {
	st := sampleState(t, 1)
	seed := node(t, st, "ITAA1997:Section:6-5")
	twin := node(t, st, "ITAA1936:Section:251S")

	n := st.Graph.Len()
	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, n)
		v[i] = 1
		vectors[i] = v
	}
	vectors[twin] = vectors[seed]
	ix, err := embedding.NewFlat(vectors)
	require.NoError(t, err)
	st.Vectors = ix

	withSemantic := newEngine(t, WithMaxDepth(1))
	fp, err := withSemantic.Fingerprint(context.Background(), st, []Seed{{Node: seed, Weight: 1}})
	require.NoError(t, err)
	assert.Positive(t, fp.Score(twin))

	without := newEngine(t, WithMaxDepth(1), WithSemanticK(0))
	fp, err = without.Fingerprint(context.Background(), st, []Seed{{Node: seed, Weight: 1}})
	require.NoError(t, err)
	assert.Zero(t, fp.Score(twin))
}

func TestIDF(t *testing.T) {
	assert.InDelta(t, 1/0.6931471805599453, idf(1), 1e-9)
	assert.Equal(t, 0.2, idf(1_000_000))
	assert.Equal(t, idf(1), idf(0))
}

func TestInvalidOptions(t *testing.T) {
	for _, opt := range []Option{
		WithMaxDepth(0), WithMaxNodes(0), WithTermFanOut(0), WithSemanticK(-1),
		WithRestart(0), WithRestart(1), WithTolerance(0), WithMaxIterations(0),
		WithTopK(0), WithCacheCapacity(0), WithViewWeights(ViewWeights{Citation: -1}),
	} {
		_, err := NewEngine(opt)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	}
}

func TestFingerprintCitedSectionsOutrankSibling(t *testing.T) {
	mk := func(id, parent string, order int, refs ...string) *core.Provision {
		p := &core.Provision{RefID: "X:Section:" + id, Act: "X", Type: core.NodeTypeSection, LocalID: id,
			Title: "Section " + id, ParentID: parent, SiblingOrder: order}
		for _, r := range refs {
			p.References = append(p.References, core.Reference{Target: "X:Section:" + r})
		}
		return p
	}
	provisions := []*core.Provision{
		{RefID: "X:Act:X", Act: "X", Type: core.NodeTypeAct, LocalID: "X", Title: "Act X"},
		{RefID: "X:Division:1", Act: "X", Type: core.NodeTypeDivision, LocalID: "1", ParentID: "X_Act_X", SiblingOrder: 1},
		{RefID: "X:Division:2", Act: "X", Type: core.NodeTypeDivision, LocalID: "2", ParentID: "X_Act_X", SiblingOrder: 2},
		mk("1-1", "X_Division_1", 1, "2-1", "2-5"),
		mk("1-5", "X_Division_1", 2),
		mk("2-1", "X_Division_2", 1),
		mk("2-5", "X_Division_2", 2),
	}
	catalog, err := core.NewCatalog([]core.Act{{ID: "X"}})
	require.NoError(t, err)
	g, err := graph.Build(provisions, graph.WithCatalog(catalog))
	require.NoError(t, err)
	st := &registry.State{Version: 1, Graph: g, Baseline: make([]float64, g.Len())}

	e := newEngine(t, WithMaxNodes(50))
	fp, err := e.Fingerprint(context.Background(), st, []Seed{{Node: node(t, st, "X:Section:1-1"), Weight: 1}})
	require.NoError(t, err)

	sibling := fp.Score(node(t, st, "X:Section:1-5"))
	assert.Greater(t, fp.Score(node(t, st, "X:Section:2-1")), sibling)
	assert.Greater(t, fp.Score(node(t, st, "X:Section:2-5")), sibling)
}
