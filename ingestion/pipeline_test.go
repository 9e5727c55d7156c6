package ingestion

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/lexgraph/ai/mock"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/registry"
	"github.com/poiesic/lexgraph/storage"
	"github.com/poiesic/lexgraph/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	repo     storage.SnapshotRepository
	registry *registry.Registry
	embedder *mock.MockEmbedder
	pipeline *Pipeline
}

func setupPipeline(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	repo, backend, err := badger.NewMemorySnapshotRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	reg, err := registry.New()
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	provider := mock.NewMockProviderWithEmbedder(embedder, mock.MockModel)

	p, err := NewPipeline(repo, reg, provider, append([]Option{WithPoolSize(2), WithRetry(2, time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &testEnv{repo: repo, registry: reg, embedder: embedder, pipeline: p}
}

func TestNewPipeline(t *testing.T) {
	repo, backend, err := badger.NewMemorySnapshotRepository()
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()
	reg, err := registry.New()
	require.NoError(t, err)
	provider := mock.NewMockProvider()

	t.Run("requires repository", func(t *testing.T) {
		_, err := NewPipeline(nil, reg, provider)
		assert.ErrorIs(t, err, ErrSnapshotRepositoryRequired)
	})

	t.Run("requires registry", func(t *testing.T) {
		_, err := NewPipeline(repo, nil, provider)
		assert.ErrorIs(t, err, ErrRegistryRequired)
	})

	t.Run("requires provider", func(t *testing.T) {
		_, err := NewPipeline(repo, reg, nil)
		assert.ErrorIs(t, err, ErrAIProviderRequired)
	})

	t.Run("rejects bad options", func(t *testing.T) {
		_, err := NewPipeline(repo, reg, provider, WithBatchSize(0))
		assert.Error(t, err)

		_, err = NewPipeline(repo, reg, provider, WithRetry(0, time.Second))
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

		_, err = NewPipeline(repo, reg, provider, WithChunker(embedding.Chunker{Size: 10, Overlap: 10}))
		assert.ErrorIs(t, err, embedding.ErrInvalidConfig)

		_, err = NewPipeline(repo, reg, provider, WithCatalog(nil))
		assert.ErrorIs(t, err, core.ErrInvalidCatalog)
	})

	t.Run("defaults", func(t *testing.T) {
		p, err := NewPipeline(repo, reg, provider, WithLogger(nil))
		require.NoError(t, err)
		defer p.Release()
		assert.Equal(t, DefaultBatchSize, p.batchSize)
		assert.Equal(t, DefaultMaxAttempts, p.maxAttempts)
		assert.NotNil(t, p.analyzer)
		assert.NotNil(t, p.pool)
	})
}

func TestIngestPublishesAndPersists(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	report, err := env.pipeline.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.Version)
	assert.Equal(t, 16, report.Nodes)
	assert.Equal(t, 16, report.Embedded+report.Skipped)
	assert.Zero(t, report.Reused)
	assert.Equal(t, mock.DefaultDimension, report.Dimension)
	assert.True(t, report.BaselineConverged)

	st, err := env.registry.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, mock.MockModel, st.Model)
	require.NotNil(t, st.Vectors)
	assert.Equal(t, report.Embedded, st.Vectors.Len())
	assert.IsType(t, &embedding.Flat{}, st.Vectors)

	snap, err := env.repo.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Manifest.Version)
	assert.Equal(t, 16, snap.Manifest.NodeCount)
	assert.Equal(t, mock.MockModel, snap.Manifest.EmbeddingModel)
	assert.Len(t, snap.Provisions, 16)
	assert.Len(t, snap.Vectors, report.Embedded)
	assert.Equal(t, st.Baseline, snap.Baseline)
}

func TestIngestReusesUnchangedVectors(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	first, err := env.pipeline.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)
	calls := env.embedder.CallCount()

	second, err := env.pipeline.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version)
	assert.Zero(t, second.Embedded)
	assert.Equal(t, first.Embedded, second.Reused)
	assert.Equal(t, calls, env.embedder.CallCount(), "nothing re-embedded")

	changed := graph.SampleProvisions()
	changed[3].Content += " Amended by a later act."
	third, err := env.pipeline.Ingest(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), third.Version)
	assert.Equal(t, 1, third.Embedded)
	assert.Equal(t, first.Embedded-1, third.Reused)
}

func TestIngestFailureKeepsPreviousVersion(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	_, err := env.pipeline.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)

	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	changed := graph.SampleProvisions()
	changed[3].Content += " Amended."
	_, err = env.pipeline.Ingest(ctx, changed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")

	assert.Equal(t, uint64(1), env.registry.Version())
	manifests, err := env.repo.ListManifests(ctx)
	require.NoError(t, err)
	assert.Len(t, manifests, 1)
}

func TestIngestRetriesTransientFailures(t *testing.T) {
	env := setupPipeline(t, WithPoolSize(1), WithBatchSize(1000))

	var attempts atomic.Int32
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("temporary error")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, mock.DefaultDimension)
		}
		return out, nil
	}

	report, err := env.pipeline.Ingest(context.Background(), graph.SampleProvisions())
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Positive(t, report.Embedded)
}

func TestIngestEmbeddingMismatch(t *testing.T) {
	env := setupPipeline(t, WithRetry(1, time.Millisecond))
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	_, err := env.pipeline.Ingest(context.Background(), graph.SampleProvisions())
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	_, err = env.registry.Current()
	assert.ErrorIs(t, err, core.ErrGraphNotReady)
}

func TestIngestEmptyCorpus(t *testing.T) {
	env := setupPipeline(t)
	_, err := env.pipeline.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, graph.ErrEmptyCorpus)

	_, err = env.registry.Current()
	assert.ErrorIs(t, err, core.ErrGraphNotReady)
}

func TestIngestUsesHNSWAboveThreshold(t *testing.T) {
	env := setupPipeline(t, WithIndex(1, embedding.WithM(4)))
	_, err := env.pipeline.Ingest(context.Background(), graph.SampleProvisions())
	require.NoError(t, err)

	st, err := env.registry.Current()
	require.NoError(t, err)
	assert.IsType(t, &embedding.HNSW{}, st.Vectors)
}

func TestIngestReportsProgress(t *testing.T) {
	var buf bytes.Buffer
	env := setupPipeline(t, WithProgress(&buf, 4))
	_, err := env.pipeline.Ingest(context.Background(), graph.SampleProvisions())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "16/16 provisions")
}

func TestIngestCancelled(t *testing.T) {
	env := setupPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.pipeline.Ingest(ctx, graph.SampleProvisions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.registry.Version())
}

func TestRestore(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	_, err := env.pipeline.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)
	_, err = env.pipeline.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)
	original, err := env.registry.Current()
	require.NoError(t, err)

	reg, err := registry.New()
	require.NoError(t, err)
	restorer, err := NewPipeline(env.repo, reg, mock.NewMockProvider())
	require.NoError(t, err)
	defer restorer.Release()

	report, err := restorer.Restore(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), report.Version)

	st, err := reg.Current()
	require.NoError(t, err)
	assert.Equal(t, original.Graph.Len(), st.Graph.Len())
	assert.Equal(t, original.Vectors.Len(), st.Vectors.Len())
	assert.InDeltaSlice(t, original.Baseline, st.Baseline, 1e-12)
	assert.Equal(t, mock.MockModel, st.Model)

	_, err = restorer.Restore(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// An older version cannot replace a newer one.
	_, err = restorer.Restore(ctx, 1)
	assert.ErrorIs(t, err, registry.ErrStaleVersion)
}
