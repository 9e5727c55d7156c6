package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/storage"
)

// SnapshotRepository implements storage.SnapshotRepository for BadgerDB.
type SnapshotRepository struct {
	backend *Backend
	mu      sync.Mutex // guards seq
	seq     *badger.Sequence
	logger  *slog.Logger
}

var _ storage.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(backend *Backend) (storage.SnapshotRepository, error) {
	if backend == nil || backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return &SnapshotRepository{
		backend: backend,
		logger:  backend.logger.With("repository", "snapshot"),
	}, nil
}

// Close releases the version sequence. The backend stays open.
func (r *SnapshotRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq == nil {
		return nil
	}
	err := r.seq.Release()
	r.seq = nil
	return err
}

// NextVersion reserves the next graph version.
func (r *SnapshotRepository) NextVersion(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	if r.seq == nil {
		seq, err := r.backend.GetSequence(snapshotVersionSeq)
		if err != nil {
			return 0, fmt.Errorf("open version sequence: %w", err)
		}
		r.seq = seq
	}
	n, err := r.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	// Sequences start at zero; version zero means "unassigned".
	return n + 1, nil
}

// SaveSnapshot stores a complete snapshot. Items are written in a batch and
// the manifest last, so a snapshot interrupted half way is never listed.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snap *core.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	version := snap.Manifest.Version

	exists, err := r.hasManifest(version)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: snapshot %d", storage.ErrDuplicateKey, version)
	}

	if err := r.writeItems(ctx, snap); err != nil {
		if cerr := r.deleteItems(version); cerr != nil {
			r.logger.Warn("failed to clean up partial snapshot", "version", version, "err", cerr)
		}
		return err
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeVersionKey(snapshotManifestPrefix, version), storage.MarshalManifest(&snap.Manifest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("write manifest %d: %w", version, err)
	}

	r.logger.Info("snapshot saved",
		"version", version,
		"provisions", len(snap.Provisions),
		"vectors", len(snap.Vectors))
	return nil
}

func validateSnapshot(snap *core.SnapshotRecord) error {
	switch {
	case snap == nil:
		return fmt.Errorf("%w: nil snapshot", storage.ErrInvalidSnapshot)
	case snap.Manifest.Version == 0:
		return fmt.Errorf("%w: version not assigned", storage.ErrInvalidSnapshot)
	case len(snap.Baseline) != 0 && len(snap.Baseline) != len(snap.Provisions):
		return fmt.Errorf("%w: %d baseline scores for %d provisions", storage.ErrInvalidSnapshot, len(snap.Baseline), len(snap.Provisions))
	}
	return nil
}

func (r *SnapshotRepository) writeItems(ctx context.Context, snap *core.SnapshotRecord) error {
	version := snap.Manifest.Version
	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	for i, p := range snap.Provisions {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := wb.Set(makeVersionItemKey(snapshotProvisionPrefix, version, i), storage.MarshalProvision(p)); err != nil {
			return fmt.Errorf("write provision %s: %w", p.InternalID, err)
		}
	}
	for i, v := range snap.Vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := wb.Set(makeVersionItemKey(snapshotVectorPrefix, version, i), storage.MarshalNodeVector(v)); err != nil {
			return fmt.Errorf("write vector %s: %w", v.InternalID, err)
		}
	}
	if err := wb.Set(makeVersionKey(snapshotBaselinePrefix, version), storage.MarshalBaseline(snap.Baseline)); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	return wb.Flush()
}

func (r *SnapshotRepository) hasManifest(version uint64) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeVersionKey(snapshotManifestPrefix, version))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// LoadSnapshot reads the snapshot stored under version.
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, version uint64) (*core.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &core.SnapshotRecord{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeVersionKey(snapshotManifestPrefix, version))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: snapshot %d", storage.ErrNotFound, version)
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			m, err := storage.UnmarshalManifest(val)
			if err != nil {
				return err
			}
			snap.Manifest = *m
			return nil
		}); err != nil {
			return fmt.Errorf("read manifest %d: %w", version, err)
		}

		if err := iteratePrefix(ctx, tx, makeVersionItemPrefix(snapshotProvisionPrefix, version), func(val []byte) error {
			p, err := storage.UnmarshalProvision(val)
			if err != nil {
				return err
			}
			snap.Provisions = append(snap.Provisions, p)
			return nil
		}); err != nil {
			return fmt.Errorf("read provisions %d: %w", version, err)
		}

		if err := iteratePrefix(ctx, tx, makeVersionItemPrefix(snapshotVectorPrefix, version), func(val []byte) error {
			v, err := storage.UnmarshalNodeVector(val)
			if err != nil {
				return err
			}
			snap.Vectors = append(snap.Vectors, v)
			return nil
		}); err != nil {
			return fmt.Errorf("read vectors %d: %w", version, err)
		}

		item, err = tx.Get(makeVersionKey(snapshotBaselinePrefix, version))
		if err != nil {
			return fmt.Errorf("read baseline %d: %w", version, err)
		}
		return item.Value(func(val []byte) error {
			scores, err := storage.UnmarshalBaseline(val)
			if err != nil {
				return err
			}
			snap.Baseline = scores
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LatestSnapshot reads the snapshot with the highest version.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context) (*core.SnapshotRecord, error) {
	manifests, err := r.ListManifests(ctx)
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("%w: no snapshots", storage.ErrNotFound)
	}
	return r.LoadSnapshot(ctx, manifests[0].Version)
}

// ListManifests returns the manifests of all stored snapshots, newest first.
func (r *SnapshotRepository) ListManifests(ctx context.Context) ([]core.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var manifests []core.Manifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(ctx, tx, []byte(snapshotManifestPrefix+":"), func(val []byte) error {
			m, err := storage.UnmarshalManifest(val)
			if err != nil {
				return err
			}
			manifests = append(manifests, *m)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	slices.Reverse(manifests)
	return manifests, nil
}

// DeleteSnapshot removes a snapshot, manifest first.
func (r *SnapshotRepository) DeleteSnapshot(ctx context.Context, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exists, err := r.hasManifest(version)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: snapshot %d", storage.ErrNotFound, version)
	}
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeVersionKey(snapshotManifestPrefix, version)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("delete manifest %d: %w", version, err)
	}
	if err := r.deleteItems(version); err != nil {
		return fmt.Errorf("delete snapshot %d: %w", version, err)
	}
	r.logger.Info("snapshot deleted", "version", version)
	return nil
}

// PruneSnapshots keeps the newest keep snapshots.
func (r *SnapshotRepository) PruneSnapshots(ctx context.Context, keep int) ([]uint64, error) {
	if keep < 0 {
		return nil, fmt.Errorf("%w: keep must not be negative", storage.ErrInvalidQuery)
	}
	manifests, err := r.ListManifests(ctx)
	if err != nil {
		return nil, err
	}
	if len(manifests) <= keep {
		return nil, nil
	}
	var deleted []uint64
	for _, m := range slices.Backward(manifests[keep:]) {
		if err := r.DeleteSnapshot(ctx, m.Version); err != nil {
			return deleted, err
		}
		deleted = append(deleted, m.Version)
	}
	return deleted, nil
}

// deleteItems removes the provisions, vectors and baseline of a version.
func (r *SnapshotRepository) deleteItems(version uint64) error {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, prefix := range [][]byte{
			makeVersionItemPrefix(snapshotProvisionPrefix, version),
			makeVersionItemPrefix(snapshotVectorPrefix, version),
		} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
			iter.Close()
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	keys = append(keys, makeVersionKey(snapshotBaselinePrefix, version))

	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// iteratePrefix calls fn with the value of every key under prefix, in key order.
func iteratePrefix(ctx context.Context, tx *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := iter.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
