package storage

import (
	"context"

	"golang.org/x/xerrors"

	"opdag/backend/snapshot"
	"opdag/backend/types"
)

// ErrNoSnapshot is returned when no snapshot is stored for a replica.
var ErrNoSnapshot = xerrors.New("no snapshot stored")

// Store keeps the latest encoded snapshot of each replica.
type Store interface {
	// Put replaces the snapshot stored for replica.
	Put(ctx context.Context, replica string, data []byte) error

	// Get returns the snapshot stored for replica or ErrNoSnapshot.
	Get(ctx context.Context, replica string) ([]byte, error)

	// Delete removes the snapshot stored for replica. Deleting a missing
	// replica is not an error.
	Delete(ctx context.Context, replica string) error

	// Replicas returns the replicas with a stored snapshot, sorted.
	Replicas(ctx context.Context) ([]string, error)

	Close() error
}

// SaveSnapshot encodes snap and stores it under its replica id.
func SaveSnapshot[P any](ctx context.Context, s Store, snap types.Snapshot[P]) error {
	if snap.Replica == "" {
		return xerrors.New("snapshot has no replica id")
	}
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, snap.Replica, data); err != nil {
		return xerrors.Errorf("failed to store snapshot of %s: %w", snap.Replica, err)
	}
	return nil
}

// LoadSnapshot reads and decodes the snapshot stored for replica.
func LoadSnapshot[P any](ctx context.Context, s Store, replica string) (types.Snapshot[P], error) {
	data, err := s.Get(ctx, replica)
	if err != nil {
		return types.Snapshot[P]{}, err
	}
	return snapshot.Unmarshal[P](data)
}
