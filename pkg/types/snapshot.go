package types

import (
	"encoding/json"
	"time"
)

// Reserved top-level keys in the snapshot document.
const (
	SyncMetadataKey = "syncMetadata"
	RecordCacheKey  = "recordCache"
)

// Mode is the outcome of the sync decision.
type Mode string

// Sync modes.
const (
	ModeCached      Mode = "cached"
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// TableMeta records what a table looked like at the last successful sync.
type TableMeta struct {
	LastModified time.Time `json:"lastModified"`
	RecordCount  int       `json:"recordCount"`
	SyncedAt     time.Time `json:"syncedAt"`
}

// SyncMetadata is the bookkeeping block stored under SyncMetadataKey.
type SyncMetadata struct {
	LastSync time.Time            `json:"lastSync"`
	Mode     Mode                 `json:"mode"`
	RunID    string               `json:"runId"`
	Checksum string               `json:"checksum"`
	Tables   map[string]TableMeta `json:"tables"`
}

// Snapshot is the full local store document.
//
// Content holds one flattened array per configured table, keyed by
// TableConfig.ContentKey. Records is the raw cache keyed by remote table
// name, sorted by record ID.
type Snapshot struct {
	Content  map[string][]map[string]any
	Metadata SyncMetadata
	Records  map[string][]Record
}

// MarshalJSON writes content arrays as top-level keys next to
// syncMetadata and recordCache.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Content)+2)
	for k, v := range s.Content {
		doc[k] = v
	}
	doc[SyncMetadataKey] = s.Metadata
	doc[RecordCacheKey] = s.Records
	return json.Marshal(doc)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown top-level keys that
// are arrays are treated as content.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.Content = make(map[string][]map[string]any)
	s.Records = make(map[string][]Record)
	s.Metadata = SyncMetadata{}
	for k, raw := range doc {
		switch k {
		case SyncMetadataKey:
			if err := json.Unmarshal(raw, &s.Metadata); err != nil {
				return err
			}
		case RecordCacheKey:
			if err := json.Unmarshal(raw, &s.Records); err != nil {
				return err
			}
		default:
			var items []map[string]any
			if err := json.Unmarshal(raw, &items); err != nil {
				// Not a content array; ignore for forward compatibility.
				continue
			}
			s.Content[k] = items
		}
	}
	if s.Metadata.Tables == nil {
		s.Metadata.Tables = make(map[string]TableMeta)
	}
	return nil
}

// ContentJSON returns the merged dataset alone, without bookkeeping. This is
// the byte sequence two syncs of the same remote state must agree on.
func (s *Snapshot) ContentJSON() ([]byte, error) {
	if s.Content == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.Content)
}
