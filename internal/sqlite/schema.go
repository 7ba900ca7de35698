package sqlite

// Schema DDL. One row in sync_state marks that a snapshot exists.
const (
	createSyncState = `CREATE TABLE IF NOT EXISTS sync_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_sync TEXT NOT NULL,
    mode TEXT NOT NULL,
    run_id TEXT NOT NULL,
    checksum TEXT NOT NULL
);`

	createSyncTables = `CREATE TABLE IF NOT EXISTS sync_tables (
    table_name TEXT PRIMARY KEY,
    last_modified TEXT NOT NULL,
    record_count INTEGER NOT NULL,
    synced_at TEXT NOT NULL
);`

	createRecords = `CREATE TABLE IF NOT EXISTS records (
    table_name TEXT NOT NULL,
    record_id TEXT NOT NULL,
    created_time TEXT NOT NULL,
    last_modified TEXT NOT NULL,
    fields TEXT NOT NULL,
    PRIMARY KEY (table_name, record_id)
);`

	createContent = `CREATE TABLE IF NOT EXISTS content (
    content_key TEXT PRIMARY KEY,
    items TEXT NOT NULL
);`

	idxRecordsModified = `CREATE INDEX IF NOT EXISTS idx_records_modified ON records(table_name, last_modified);`
)

// schemaDDL lists all statements in creation order.
var schemaDDL = []string{
	createSyncState,
	createSyncTables,
	createRecords,
	createContent,
	idxRecordsModified,
}

// clearOrder lists tables emptied before a snapshot is rewritten.
var clearOrder = []string{"content", "records", "sync_tables", "sync_state"}
