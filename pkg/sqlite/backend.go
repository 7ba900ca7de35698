// Package sqlite exposes the SQLite snapshot backend to programs outside
// this module, such as a site generator reading content from sitesync.db
// instead of content.json.
package sqlite

import (
	"context"

	"github.com/mesh-intelligence/sitesync/internal/sqlite"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// DBName is the database file created inside the data directory.
const DBName = sqlite.DBName

// Open opens (creating if needed) the snapshot database in dataDir.
//
// Example:
//
//	st, err := sqlite.Open("data")
//	if err != nil { ... }
//	defer st.Close()
//	snap, err := st.Load(ctx)
func Open(dataDir string) (types.Store, error) {
	st, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Content loads the stored snapshot and returns its content arrays keyed by
// content key. It fails with types.ErrNoSnapshot before the first sync.
func Content(ctx context.Context, dataDir string) (map[string][]map[string]any, error) {
	st, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	snap, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Content, nil
}
