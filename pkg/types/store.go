package types

import (
	"context"
	"errors"
)

// Store persists snapshots. Save must be atomic: either the new snapshot is
// fully visible afterwards or the previous one still loads.
type Store interface {
	// Load returns the last saved snapshot, or ErrNoSnapshot.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *Snapshot) error

	// Close releases backend resources. Idempotent.
	Close() error
}

// Store and sync errors.
var (
	ErrNoSnapshot   = errors.New("no snapshot stored")
	ErrStoreWrite   = errors.New("snapshot write failed")
	ErrStoreClosed  = errors.New("store is closed")
	ErrRemoteFetch  = errors.New("remote fetch failed")
	ErrCorruptStore = errors.New("stored snapshot is unreadable")
)
