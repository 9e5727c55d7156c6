package storage

import (
	"context"

	"github.com/poiesic/lexgraph/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// SnapshotRepository persists graph snapshots by version.
type SnapshotRepository interface {
	Repository

	// NextVersion reserves a new graph version. Versions strictly increase,
	// also across restarts.
	NextVersion(ctx context.Context) (uint64, error)

	// SaveSnapshot stores a complete snapshot under its manifest version.
	// The snapshot becomes visible to readers only once fully written.
	// Returns ErrDuplicateKey if the version is already stored.
	SaveSnapshot(ctx context.Context, snapshot *core.SnapshotRecord) error

	// LoadSnapshot reads the snapshot stored under version.
	// Returns ErrNotFound if it doesn't exist.
	LoadSnapshot(ctx context.Context, version uint64) (*core.SnapshotRecord, error)

	// LatestSnapshot reads the snapshot with the highest version.
	// Returns ErrNotFound if nothing was stored yet.
	LatestSnapshot(ctx context.Context) (*core.SnapshotRecord, error)

	// ListManifests returns the manifests of all stored snapshots, newest first.
	ListManifests(ctx context.Context) ([]core.Manifest, error)

	// DeleteSnapshot removes a snapshot.
	// Returns ErrNotFound if it doesn't exist.
	DeleteSnapshot(ctx context.Context, version uint64) error

	// PruneSnapshots keeps the newest keep snapshots and deletes the rest,
	// returning the deleted versions.
	PruneSnapshots(ctx context.Context, keep int) ([]uint64, error)
}
