package types

import (
	"errors"
	"fmt"
	"time"
)

// Config holds everything a sync run needs: remote credentials, the tables to
// pull, and where the snapshot lives.
type Config struct {
	Airtable AirtableConfig `json:"airtable" yaml:"airtable" mapstructure:"airtable"`
	Tables   []TableConfig  `json:"tables" yaml:"tables" mapstructure:"tables"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`

	// Concurrency bounds the per-table fan-out. Zero means DefaultConcurrency.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty" mapstructure:"concurrency"`

	// MaxIDsPerFetch caps the record IDs requested by formula in one
	// incremental fetch; above it the whole table is listed instead.
	MaxIDsPerFetch int `json:"max_ids_per_fetch,omitempty" yaml:"max_ids_per_fetch,omitempty" mapstructure:"max_ids_per_fetch"`
}

// AirtableConfig identifies the remote base and how to reach it.
type AirtableConfig struct {
	APIKey         string        `json:"-" yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseID         string        `json:"base_id" yaml:"base_id" mapstructure:"base_id"`
	Endpoint       string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	TimestampField string        `json:"timestamp_field,omitempty" yaml:"timestamp_field,omitempty" mapstructure:"timestamp_field"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// TableConfig maps one remote table to a top-level content key.
type TableConfig struct {
	// Name is the remote table name.
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	// Key is the content array key in the snapshot. Defaults to the
	// lowerCamel form of Name.
	Key string `json:"key,omitempty" yaml:"key,omitempty" mapstructure:"key"`
	// SortField orders the content array. Ties and empty values fall back
	// to record ID.
	SortField string `json:"sort_field,omitempty" yaml:"sort_field,omitempty" mapstructure:"sort_field"`
	// Descending reverses SortField ordering.
	Descending bool `json:"descending,omitempty" yaml:"descending,omitempty" mapstructure:"descending"`
}

// StoreConfig selects the snapshot backend.
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// Supported store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultEndpoint       = "https://api.airtable.com"
	DefaultTimestampField = "Last Modified"
	DefaultTimeout        = 30 * time.Second
	DefaultConcurrency    = 4
	DefaultMaxIDsPerFetch = 50
)

// Config validation errors.
var (
	ErrMissingCredentials = errors.New("missing Airtable credentials")
	ErrNoTables           = errors.New("no tables configured")
	ErrDuplicateTable     = errors.New("duplicate table")
	ErrBackendEmpty       = errors.New("backend must not be empty")
	ErrBackendUnknown     = errors.New("unknown backend")
)

var knownBackends = map[string]bool{
	BackendJSON:   true,
	BackendSQLite: true,
	BackendPebble: true,
}

// Validate checks credentials first so a run without them aborts before
// anything else is looked at.
func (c Config) Validate() error {
	if err := c.Airtable.Validate(); err != nil {
		return err
	}
	if len(c.Tables) == 0 {
		return ErrNoTables
	}
	seen := make(map[string]bool, len(c.Tables))
	keys := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: empty name", ErrNoTables)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
		}
		seen[t.Name] = true
		k := t.ContentKey()
		if keys[k] || k == SyncMetadataKey || k == RecordCacheKey {
			return fmt.Errorf("%w: content key %s", ErrDuplicateTable, k)
		}
		keys[k] = true
	}
	return c.Store.Validate()
}

// Validate returns ErrMissingCredentials when the API key or base ID is empty.
func (a AirtableConfig) Validate() error {
	if a.APIKey == "" || a.BaseID == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Validate checks the backend name.
func (s StoreConfig) Validate() error {
	if s.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[s.Backend] {
		return fmt.Errorf("%w: %s", ErrBackendUnknown, s.Backend)
	}
	return nil
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Airtable.Endpoint == "" {
		c.Airtable.Endpoint = DefaultEndpoint
	}
	if c.Airtable.TimestampField == "" {
		c.Airtable.TimestampField = DefaultTimestampField
	}
	if c.Airtable.Timeout <= 0 {
		c.Airtable.Timeout = DefaultTimeout
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendJSON
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxIDsPerFetch <= 0 {
		c.MaxIDsPerFetch = DefaultMaxIDsPerFetch
	}
	return c
}

// TableNames returns the configured remote table names in order.
func (c Config) TableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}

// ContentKey returns Key, or the lowerCamel form of Name.
func (t TableConfig) ContentKey() string {
	if t.Key != "" {
		return t.Key
	}
	return LowerCamel(t.Name)
}
