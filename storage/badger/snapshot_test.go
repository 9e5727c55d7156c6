package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshotRepo(t *testing.T) storage.SnapshotRepository {
	t.Helper()
	repo, backend, err := NewMemorySnapshotRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func testSnapshot(version uint64, nodes int) *core.SnapshotRecord {
	snap := &core.SnapshotRecord{
		Manifest: core.Manifest{
			Version:            version,
			CreatedAt:          time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
			NodeCount:          nodes,
			EmbeddingModel:     "mock",
			Dimension:          2,
			BaselineIterations: 12,
			BaselineConverged:  true,
		},
	}
	for i := range nodes {
		id := fmt.Sprintf("X_Section_%d", i+1)
		snap.Provisions = append(snap.Provisions, &core.Provision{
			InternalID:   id,
			RefID:        fmt.Sprintf("X:Section:%d", i+1),
			Act:          "X",
			Type:         core.NodeTypeSection,
			LocalID:      fmt.Sprint(i + 1),
			Title:        fmt.Sprintf("Section %d", i+1),
			Content:      "Text of the section.",
			SiblingOrder: i,
			References:   []core.Reference{{Target: "X:Section:1", Snippet: "see section 1"}},
		})
		snap.Vectors = append(snap.Vectors, &core.NodeVector{
			InternalID:  id,
			ContentHash: core.IDFromContent(id),
			Model:       "mock",
			Chunks:      [][]float32{{1, 0}},
			Mean:        []float32{1, 0},
		})
		snap.Baseline = append(snap.Baseline, 1/float64(nodes))
	}
	return snap
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	// More items than fit one index byte, to check ordering survives.
	snap := testSnapshot(1, 300)
	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	loaded, err := repo.LoadSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestSnapshotLoadMissing(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	_, err := repo.LoadSnapshot(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotDuplicateVersion(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(3, 2)))
	err := repo.SaveSnapshot(ctx, testSnapshot(3, 5))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	loaded, err := repo.LoadSnapshot(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, loaded.Provisions, 2, "original snapshot is untouched")
}

func TestSnapshotInvalid(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.SaveSnapshot(ctx, nil), storage.ErrInvalidSnapshot)
	assert.ErrorIs(t, repo.SaveSnapshot(ctx, testSnapshot(0, 1)), storage.ErrInvalidSnapshot)

	snap := testSnapshot(1, 3)
	snap.Baseline = snap.Baseline[:1]
	assert.ErrorIs(t, repo.SaveSnapshot(ctx, snap), storage.ErrInvalidSnapshot)
}

func TestSnapshotLatestAndList(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	for _, v := range []uint64{2, 10, 5} {
		require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(v, int(v))))
	}

	manifests, err := repo.ListManifests(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 3)
	assert.Equal(t, uint64(10), manifests[0].Version)
	assert.Equal(t, uint64(5), manifests[1].Version)
	assert.Equal(t, uint64(2), manifests[2].Version)

	latest, err := repo.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), latest.Manifest.Version)
	assert.Len(t, latest.Provisions, 10)
}

func TestSnapshotDelete(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(1, 4)))
	require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(2, 4)))

	require.NoError(t, repo.DeleteSnapshot(ctx, 1))
	_, err := repo.LoadSnapshot(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSnapshot(ctx, 1), storage.ErrNotFound)

	// The version can be written again once deleted, with no stale items.
	require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(1, 2)))
	loaded, err := repo.LoadSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, loaded.Provisions, 2)
	assert.Len(t, loaded.Vectors, 2)

	other, err := repo.LoadSnapshot(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, other.Provisions, 4)
}

func TestSnapshotPrune(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	for v := uint64(1); v <= 5; v++ {
		require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(v, 1)))
	}

	deleted, err := repo.PruneSnapshots(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, deleted)

	manifests, err := repo.ListManifests(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, uint64(5), manifests[0].Version)

	deleted, err = repo.PruneSnapshots(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	_, err = repo.PruneSnapshots(ctx, -1)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestSnapshotNextVersion(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	prev := uint64(0)
	for range 40 {
		v, err := repo.NextVersion(ctx)
		require.NoError(t, err)
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestSnapshotCancelledContext(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.SaveSnapshot(ctx, testSnapshot(1, 1)), context.Canceled)
	_, err := repo.NextVersion(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.ListManifests(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	repo, err := NewSnapshotRepository(backend)
	require.NoError(t, err)

	v1, err := repo.NextVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(v1, 3)))
	require.NoError(t, repo.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	repo, err = NewSnapshotRepository(backend)
	require.NoError(t, err)
	defer repo.Close()

	latest, err := repo.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, latest.Manifest.Version)

	v2, err := repo.NextVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, v2, v1, "versions keep increasing after reopen")
}

func TestNewSnapshotRepositoryClosedBackend(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	_, err = NewSnapshotRepository(backend)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
