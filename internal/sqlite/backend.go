// Package sqlite implements the SQLite snapshot backend.
//
// The snapshot is normalized into four tables so the site (or ad-hoc
// queries) can read records without parsing one large document. Save
// rewrites every table inside a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// DBName is the database file inside the data dir.
const DBName = "sitesync.db"

// Store implements types.Store on SQLite.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates dataDir if needed, opens dataDir/sitesync.db and applies the
// schema.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBName))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection keeps the pure-Go driver from contending on the file.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Load reassembles the snapshot. Returns ErrNoSnapshot before the first Save.
func (s *Store) Load(ctx context.Context) (*types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}

	snap := &types.Snapshot{
		Content:  make(map[string][]map[string]any),
		Records:  make(map[string][]types.Record),
		Metadata: types.SyncMetadata{Tables: make(map[string]types.TableMeta)},
	}

	var lastSync, mode string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_sync, mode, run_id, checksum FROM sync_state WHERE id = 1",
	).Scan(&lastSync, &mode, &snap.Metadata.RunID, &snap.Metadata.Checksum)
	if err == sql.ErrNoRows {
		return nil, types.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	if snap.Metadata.LastSync, err = parseTime(lastSync); err != nil {
		return nil, fmt.Errorf("%w: last_sync: %w", types.ErrCorruptStore, err)
	}
	snap.Metadata.Mode = types.Mode(mode)

	if err := s.loadTables(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadRecords(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadContent(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadTables(ctx context.Context, snap *types.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT table_name, last_modified, record_count, synced_at FROM sync_tables")
	if err != nil {
		return fmt.Errorf("reading sync tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, lastMod, syncedAt string
		var meta types.TableMeta
		if err := rows.Scan(&name, &lastMod, &meta.RecordCount, &syncedAt); err != nil {
			return fmt.Errorf("scanning sync table: %w", err)
		}
		if meta.LastModified, err = parseTime(lastMod); err != nil {
			return fmt.Errorf("%w: %s last_modified: %w", types.ErrCorruptStore, name, err)
		}
		if meta.SyncedAt, err = parseTime(syncedAt); err != nil {
			return fmt.Errorf("%w: %s synced_at: %w", types.ErrCorruptStore, name, err)
		}
		snap.Metadata.Tables[name] = meta
	}
	return rows.Err()
}

func (s *Store) loadRecords(ctx context.Context, snap *types.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT table_name, record_id, created_time, last_modified, fields FROM records ORDER BY table_name, record_id")
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, created, lastMod, fields string
		var rec types.Record
		if err := rows.Scan(&table, &rec.ID, &created, &lastMod, &fields); err != nil {
			return fmt.Errorf("scanning record: %w", err)
		}
		if rec.CreatedTime, err = parseTime(created); err != nil {
			return fmt.Errorf("%w: record %s: %w", types.ErrCorruptStore, rec.ID, err)
		}
		if rec.LastModified, err = parseTime(lastMod); err != nil {
			return fmt.Errorf("%w: record %s: %w", types.ErrCorruptStore, rec.ID, err)
		}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return fmt.Errorf("%w: record %s fields: %w", types.ErrCorruptStore, rec.ID, err)
		}
		snap.Records[table] = append(snap.Records[table], rec)
	}
	return rows.Err()
}

func (s *Store) loadContent(ctx context.Context, snap *types.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT content_key, items FROM content")
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, items string
		if err := rows.Scan(&key, &items); err != nil {
			return fmt.Errorf("scanning content: %w", err)
		}
		var list []map[string]any
		if err := json.Unmarshal([]byte(items), &list); err != nil {
			return fmt.Errorf("%w: content %s: %w", types.ErrCorruptStore, key, err)
		}
		snap.Content[key] = list
	}
	return rows.Err()
}

// Save rewrites the whole snapshot in one transaction. On any error the
// transaction rolls back and the previous snapshot is untouched.
func (s *Store) Save(ctx context.Context, snap *types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return types.ErrStoreClosed
	}
	if err := s.save(ctx, snap); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreWrite, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, snap *types.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range clearOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	md := snap.Metadata
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sync_state (id, last_sync, mode, run_id, checksum) VALUES (1, ?, ?, ?, ?)",
		formatTime(md.LastSync), string(md.Mode), md.RunID, md.Checksum,
	); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}

	for name, meta := range md.Tables {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sync_tables (table_name, last_modified, record_count, synced_at) VALUES (?, ?, ?, ?)",
			name, formatTime(meta.LastModified), meta.RecordCount, formatTime(meta.SyncedAt),
		); err != nil {
			return fmt.Errorf("writing sync table %s: %w", name, err)
		}
	}

	if err := insertRecords(ctx, tx, snap.Records); err != nil {
		return err
	}

	for key, items := range snap.Content {
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encoding content %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO content (content_key, items) VALUES (?, ?)", key, string(data)); err != nil {
			return fmt.Errorf("writing content %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save transaction: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, records map[string][]types.Record) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO records (table_name, record_id, created_time, last_modified, fields) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close()

	for table, recs := range records {
		for _, rec := range recs {
			fields, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("encoding record %s: %w", rec.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, table, rec.ID,
				formatTime(rec.CreatedTime), formatTime(rec.LastModified), string(fields),
			); err != nil {
				return fmt.Errorf("writing record %s/%s: %w", table, rec.ID, err)
			}
		}
	}
	return nil
}

// Close closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
