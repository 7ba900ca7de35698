// Package store persists sitesync snapshots.
//
// The default backend is a single JSON document that the site build reads
// directly. SQLite and Pebble backends keep the same snapshot for setups
// where the site pulls content from an embedded database instead.
package store

import (
	"fmt"

	"github.com/mesh-intelligence/sitesync/internal/sqlite"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// Open returns the backend named by cfg.Backend rooted at cfg.DataDir.
// An empty backend selects the JSON document store.
func Open(cfg types.StoreConfig) (types.Store, error) {
	if cfg.Backend == "" {
		cfg.Backend = types.BackendJSON
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case types.BackendJSON:
		return OpenJSON(cfg.DataDir)
	case types.BackendSQLite:
		return sqlite.Open(cfg.DataDir)
	case types.BackendPebble:
		return OpenPebble(cfg.DataDir)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrBackendUnknown, cfg.Backend)
	}
}
