package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// DocumentName is the file the site build imports.
const DocumentName = "content.json"

// JSONStore keeps the snapshot as one JSON document on disk.
type JSONStore struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// OpenJSON creates dataDir if needed and returns a store writing
// dataDir/content.json.
func OpenJSON(dataDir string) (*JSONStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &JSONStore{path: filepath.Join(dataDir, DocumentName)}, nil
}

// Path returns the document location.
func (s *JSONStore) Path() string { return s.path }

// Load reads the document. A missing file is ErrNoSnapshot; an unparsable
// one is ErrCorruptStore.
func (s *JSONStore) Load(ctx context.Context) (*types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, types.ErrStoreClosed
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, types.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrCorruptStore, s.path, err)
	}
	return &snap, nil
}

// Save writes the document atomically.
func (s *JSONStore) Save(ctx context.Context, snap *types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %w", types.ErrStoreWrite, err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreWrite, err)
	}
	return nil
}

// Close marks the store closed. Idempotent.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeFileAtomic uses the temp-file, fsync, rename pattern so readers see
// either the old document or the new one, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".content-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
