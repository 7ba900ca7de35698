// Package syncer decides how much of the remote base to refetch and writes
// the resulting snapshot.
//
// A run ends in one of three modes. Full refetches every table. Cached
// confirms through the cheap stamp listing that nothing moved and reuses the
// stored dataset. Incremental refetches only the records whose timestamps
// moved, and drops records that disappeared. Any remote error while checking
// or fetching incrementally downgrades the run to full.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/sitesync/internal/content"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// Source is the remote table store.
type Source interface {
	// ListStamps returns the ID and last-modified time of every record.
	ListStamps(ctx context.Context, table string) ([]types.Stamp, error)

	// ListRecords returns all records of table, or only those in ids when
	// ids is non-empty.
	ListRecords(ctx context.Context, table string, ids []string) ([]types.Record, error)
}

// Options controls a single run.
type Options struct {
	// Force skips the timestamp check and refetches everything.
	Force bool
}

// Result describes what a run did.
type Result struct {
	Mode          types.Mode               `json:"mode"`
	RunID         string                   `json:"runId"`
	Reason        string                   `json:"reason"`
	Tables        map[string]types.Changes `json:"tables"`
	RecordCount   int                      `json:"recordCount"`
	Checksum      string                   `json:"checksum"`
	StartedAt     time.Time                `json:"startedAt"`
	Duration      time.Duration            `json:"duration"`
	FallbackError string                   `json:"fallbackError,omitempty"`
}

// Syncer runs syncs for one configuration.
type Syncer struct {
	cfg   types.Config
	src   Source
	store types.Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New validates cfg and returns a Syncer. Missing credentials are reported
// here, before the source is ever called.
func New(cfg types.Config, src Source, store types.Store, opts ...Option) (*Syncer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Syncer{
		cfg:   cfg,
		src:   src,
		store: store,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: newRunID,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// newRunID generates a UUID v7 for the run.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Run performs one sync. Errors are returned only for a failed full sync or
// a failed snapshot write; incremental failures fall back to full.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{
		RunID:     s.newID(),
		StartedAt: s.now().UTC(),
		Tables:    make(map[string]types.Changes, len(s.cfg.Tables)),
	}
	log := s.log.With(zap.String("run", res.RunID))

	prev, err := s.loadPrevious(ctx, log)
	if err != nil {
		SyncFailures.Inc()
		return nil, err
	}

	switch {
	case opts.Force:
		res.Reason = "full sync forced"
	case prev == nil:
		res.Reason = "no previous snapshot"
	default:
		records, err := s.incremental(ctx, log, prev, res)
		if err == nil {
			if res.Mode == types.ModeCached {
				return s.finish(log, res), nil
			}
			if err := s.write(ctx, log, records, res); err != nil {
				SyncFailures.Inc()
				return nil, err
			}
			return s.finish(log, res), nil
		}
		if ctx.Err() != nil {
			SyncFailures.Inc()
			return nil, ctx.Err()
		}
		log.Warn("incremental sync failed, falling back to full sync", zap.Error(err))
		res.FallbackError = err.Error()
		res.Reason = "fallback after incremental failure"
		res.Tables = make(map[string]types.Changes, len(s.cfg.Tables))
	}

	records, err := s.full(ctx, prev, res)
	if err != nil {
		SyncFailures.Inc()
		return nil, err
	}
	if err := s.write(ctx, log, records, res); err != nil {
		SyncFailures.Inc()
		return nil, err
	}
	return s.finish(log, res), nil
}

func (s *Syncer) finish(log *zap.Logger, res *Result) *Result {
	res.Duration = s.now().UTC().Sub(res.StartedAt)
	observe(res)
	log.Info("sync complete",
		zap.String("mode", string(res.Mode)),
		zap.String("reason", res.Reason),
		zap.Int("records", res.RecordCount),
		zap.String("checksum", res.Checksum),
		zap.Duration("duration", res.Duration))
	return res
}

// loadPrevious returns the stored snapshot, or nil when there is none or it
// cannot be parsed.
func (s *Syncer) loadPrevious(ctx context.Context, log *zap.Logger) (*types.Snapshot, error) {
	prev, err := s.store.Load(ctx)
	switch {
	case err == nil:
		return prev, nil
	case errors.Is(err, types.ErrNoSnapshot):
		return nil, nil
	case errors.Is(err, types.ErrCorruptStore):
		log.Warn("stored snapshot unreadable, ignoring it", zap.Error(err))
		return nil, nil
	default:
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
}

// incremental compares stamps against prev. It either confirms the cache
// (res.Mode cached, nil records) or refetches changed records and returns
// the merged record set for every configured table.
func (s *Syncer) incremental(ctx context.Context, log *zap.Logger, prev *types.Snapshot, res *Result) (map[string][]types.Record, error) {
	names := s.cfg.TableNames()
	stamps, err := s.fetchStamps(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("checking timestamps: %w", err)
	}

	configured := make(map[string]bool, len(names))
	var changed []string
	diffs := make(map[string]tableDiff, len(names))
	wholeTable := make(map[string]bool)
	for i, name := range names {
		configured[name] = true
		meta, known := prev.Metadata.Tables[name]
		cache := prev.Records[name]
		d := diffStamps(cache, stamps[i])
		diffs[name] = d

		drift := !known || metaDrift(meta, stamps[i]) || len(cache) != meta.RecordCount
		if !drift && !d.changes.Any() {
			continue
		}
		changed = append(changed, name)
		log.Debug("table changed",
			zap.String("table", name),
			zap.Bool("known", known),
			zap.Int("new", d.changes.New),
			zap.Int("changed", d.changes.Changed),
			zap.Int("deleted", d.changes.Deleted))
		if !known || !d.changes.Any() || len(d.fetch) > s.cfg.MaxIDsPerFetch {
			wholeTable[name] = true
		}
	}

	var dropped []string
	for name := range prev.Metadata.Tables {
		if !configured[name] {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)

	if len(changed) == 0 && len(dropped) == 0 {
		for i, name := range names {
			res.Tables[name] = types.Changes{Unchanged: len(stamps[i])}
			res.RecordCount += len(stamps[i])
		}
		// The stored content must still be what the current table layout
		// produces; a changed key or sort order forces a rewrite.
		if s.layoutChecksum(prev) == prev.Metadata.Checksum {
			res.Mode = types.ModeCached
			res.Reason = "no table timestamps changed"
			res.Checksum = prev.Metadata.Checksum
			return nil, nil
		}
		res.Mode = types.ModeIncremental
		res.Reason = "table layout changed"
		records := make(map[string][]types.Record, len(names))
		for _, name := range names {
			records[name] = sortRecords(prev.Records[name])
		}
		return records, nil
	}

	fetched, err := s.fetchChanged(ctx, changed, diffs, wholeTable)
	if err != nil {
		return nil, fmt.Errorf("fetching changed records: %w", err)
	}

	records := make(map[string][]types.Record, len(names))
	for _, name := range names {
		cache := prev.Records[name]
		d := diffs[name]
		recs, ok := fetched[name]
		switch {
		case !ok:
			records[name] = sortRecords(cache)
			res.Tables[name] = d.changes
		case wholeTable[name]:
			records[name] = sortRecords(recs)
			res.Tables[name] = diffRecords(cache, recs)
		default:
			if len(recs) != len(d.fetch) {
				return nil, fmt.Errorf("table %s: requested %d records, got %d", name, len(d.fetch), len(recs))
			}
			records[name] = mergeRecords(cache, d, recs)
			res.Tables[name] = d.changes
		}
	}

	res.Mode = types.ModeIncremental
	var reasons []string
	if len(changed) > 0 {
		reasons = append(reasons, "changed tables: "+strings.Join(changed, ", "))
	}
	if len(dropped) > 0 {
		reasons = append(reasons, "removed tables: "+strings.Join(dropped, ", "))
	}
	res.Reason = strings.Join(reasons, "; ")
	return records, nil
}

// full refetches every configured table with one listing each.
func (s *Syncer) full(ctx context.Context, prev *types.Snapshot, res *Result) (map[string][]types.Record, error) {
	names := s.cfg.TableNames()
	fetched, err := s.fetchAll(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("full sync: %w", err)
	}

	records := make(map[string][]types.Record, len(names))
	for i, name := range names {
		var cache []types.Record
		if prev != nil {
			cache = prev.Records[name]
		}
		records[name] = sortRecords(fetched[i])
		res.Tables[name] = diffRecords(cache, fetched[i])
	}
	res.Mode = types.ModeFull
	return records, nil
}

// write derives content and metadata from records and saves the snapshot.
func (s *Syncer) write(ctx context.Context, log *zap.Logger, records map[string][]types.Record, res *Result) error {
	snap, err := s.buildSnapshot(records, res)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	log.Debug("snapshot saved", zap.String("checksum", snap.Metadata.Checksum))
	return nil
}

func (s *Syncer) buildSnapshot(records map[string][]types.Record, res *Result) (*types.Snapshot, error) {
	snap := &types.Snapshot{
		Content: content.Build(s.cfg.Tables, records),
		Records: records,
		Metadata: types.SyncMetadata{
			LastSync: res.StartedAt,
			Mode:     res.Mode,
			RunID:    res.RunID,
			Tables:   make(map[string]types.TableMeta, len(records)),
		},
	}
	data, err := snap.ContentJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}
	snap.Metadata.Checksum = Checksum(data)

	res.RecordCount = 0
	for name, recs := range records {
		snap.Metadata.Tables[name] = types.TableMeta{
			LastModified: latest(stampsOf(recs)),
			RecordCount:  len(recs),
			SyncedAt:     res.StartedAt,
		}
		res.RecordCount += len(recs)
	}
	res.Checksum = snap.Metadata.Checksum
	return snap, nil
}

// layoutChecksum is the checksum the cached records would produce under the
// current table configuration.
func (s *Syncer) layoutChecksum(prev *types.Snapshot) string {
	cached := &types.Snapshot{Content: content.Build(s.cfg.Tables, prev.Records)}
	data, err := cached.ContentJSON()
	if err != nil {
		return ""
	}
	return Checksum(data)
}

// Checksum is the hex xxhash of the merged dataset bytes.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
