package storage

import (
	"testing"
	"time"

	"github.com/poiesic/lexgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProvision() *core.Provision {
	return &core.Provision{
		InternalID:   "ITAA1997_Section_6-5",
		RefID:        "ITAA1997:Section:6-5",
		Act:          "ITAA1997",
		Type:         core.NodeTypeSection,
		LocalID:      "6-5",
		Title:        "Income according to ordinary concepts",
		Content:      "Your assessable income includes income according to ordinary concepts.",
		ParentID:     "ITAA1997_Division_6",
		SiblingOrder: 2,
		References: []core.Reference{
			{Target: "ITAA1997:Section:6-10", Snippet: "see section 6-10"},
			{Target: "ITAA1997:Section:995-1"},
		},
		TermsUsed: []string{"ordinary income", "assessable income"},
	}
}

func TestProvisionRoundTrip(t *testing.T) {
	p := sampleProvision()
	decoded, err := UnmarshalProvision(MarshalProvision(p))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)

	t.Run("minimal record", func(t *testing.T) {
		p := &core.Provision{InternalID: "X_Act_X", Act: "X", Type: core.NodeTypeAct, Excluded: true, SiblingOrder: -1}
		decoded, err := UnmarshalProvision(MarshalProvision(p))
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	})
}

func TestNodeVectorRoundTrip(t *testing.T) {
	v := &core.NodeVector{
		InternalID:  "ITAA1997_Section_6-5",
		ContentHash: core.IDFromContent("text"),
		Model:       "embeddinggemma",
		Chunks:      [][]float32{{0.6, 0.8}, {1, 0}},
		Mean:        []float32{0.9486833, 0.31622776},
	}
	decoded, err := UnmarshalNodeVector(MarshalNodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestManifestRoundTrip(t *testing.T) {
	m := &core.Manifest{
		Version:             7,
		CreatedAt:           time.Date(2025, 3, 1, 12, 0, 0, 42, time.UTC),
		NodeCount:           16,
		CitationEdges:       12,
		TermEdges:           9,
		EmbeddingModel:      "mock-embedding",
		Dimension:           64,
		BaselineIterations:  31,
		BaselineConverged:   true,
		UnresolvedCitations: 1,
	}
	decoded, err := UnmarshalManifest(MarshalManifest(m))
	require.NoError(t, err)
	assert.Equal(t, m, decoded)

	zero, err := UnmarshalManifest(MarshalManifest(&core.Manifest{}))
	require.NoError(t, err)
	assert.True(t, zero.CreatedAt.IsZero())
}

func TestBaselineRoundTrip(t *testing.T) {
	scores := []float64{0.25, 0, 0.5, 0.25}
	decoded, err := UnmarshalBaseline(MarshalBaseline(scores))
	require.NoError(t, err)
	assert.Equal(t, scores, decoded)

	empty, err := UnmarshalBaseline(MarshalBaseline(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUnmarshalCorruptData(t *testing.T) {
	data := MarshalProvision(sampleProvision())

	t.Run("empty", func(t *testing.T) {
		_, err := UnmarshalProvision(nil)
		assert.ErrorIs(t, err, ErrTruncatedData)
	})

	t.Run("unknown format", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[0] = 99
		_, err := UnmarshalProvision(bad)
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		for _, cut := range []int{2, len(data) / 2, len(data) - 1} {
			_, err := UnmarshalProvision(data[:cut])
			assert.Error(t, err, "cut at %d", cut)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := UnmarshalProvision(append(append([]byte{}, data...), 0))
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("wrong record kind", func(t *testing.T) {
		_, err := UnmarshalManifest(MarshalBaseline([]float64{1, 2, 3}))
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})
}
