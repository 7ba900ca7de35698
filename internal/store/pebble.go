package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// pebbleDirName is the database directory inside the data dir.
const pebbleDirName = "snapshot.pebble"

// snapshotKey holds the encoded snapshot document.
var snapshotKey = []byte("sitesync/snapshot")

// PebbleStore keeps the snapshot under a single key in a Pebble database.
// A single synced Set is atomic, so a failed Save leaves the prior value.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenPebble opens or creates dataDir/snapshot.pebble.
func OpenPebble(dataDir string) (*PebbleStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	db, err := pebble.Open(filepath.Join(dataDir, pebbleDirName), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Load decodes the stored snapshot.
func (s *PebbleStore) Load(ctx context.Context) (*types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}

	val, closer, err := s.db.Get(snapshotKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, types.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	defer closer.Close()

	var snap types.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCorruptStore, err)
	}
	return &snap, nil
}

// Save replaces the snapshot with a synced write.
func (s *PebbleStore) Save(ctx context.Context, snap *types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return types.ErrStoreClosed
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %w", types.ErrStoreWrite, err)
	}
	if err := s.db.Set(snapshotKey, data, pebble.Sync); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreWrite, err)
	}
	return nil
}

// Close closes the database. Idempotent.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
