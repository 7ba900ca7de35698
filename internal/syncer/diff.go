package syncer

import (
	"sort"
	"time"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// tableDiff is the record-level comparison of one table against the cache.
type tableDiff struct {
	changes types.Changes
	// fetch lists new and changed record IDs, sorted.
	fetch []string
	// deleted lists cached record IDs absent remotely.
	deleted map[string]bool
}

// diffStamps classifies every record exactly once: each remote stamp is new,
// changed or unchanged; each cached record without a stamp is deleted.
func diffStamps(cache []types.Record, stamps []types.Stamp) tableDiff {
	cached := make(map[string]time.Time, len(cache))
	for _, r := range cache {
		cached[r.ID] = r.LastModified
	}

	d := tableDiff{deleted: make(map[string]bool)}
	seen := make(map[string]bool, len(stamps))
	for _, st := range stamps {
		if seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		prev, ok := cached[st.ID]
		switch {
		case !ok:
			d.changes.Add(types.ChangeNew)
			d.fetch = append(d.fetch, st.ID)
		case !prev.Equal(st.LastModified):
			d.changes.Add(types.ChangeChanged)
			d.fetch = append(d.fetch, st.ID)
		default:
			d.changes.Add(types.ChangeUnchanged)
		}
	}
	for id := range cached {
		if !seen[id] {
			d.changes.Add(types.ChangeDeleted)
			d.deleted[id] = true
		}
	}
	sort.Strings(d.fetch)
	return d
}

// diffRecords classifies fully fetched records against the cache.
func diffRecords(cache, fresh []types.Record) types.Changes {
	return diffStamps(cache, stampsOf(fresh)).changes
}

// metaDrift reports whether the table summary no longer matches the stored
// metadata: a different newest timestamp or a different record count.
func metaDrift(meta types.TableMeta, stamps []types.Stamp) bool {
	return !latest(stamps).Equal(meta.LastModified) || len(stamps) != meta.RecordCount
}

// latest returns the newest stamp time, or the zero time for an empty table.
func latest(stamps []types.Stamp) time.Time {
	var max time.Time
	for _, s := range stamps {
		if s.LastModified.After(max) {
			max = s.LastModified
		}
	}
	return max
}

// mergeRecords applies a partial fetch to the cache: deleted and refetched
// records are replaced, everything else is kept.
func mergeRecords(cache []types.Record, d tableDiff, fetched []types.Record) []types.Record {
	refetched := make(map[string]bool, len(fetched))
	for _, r := range fetched {
		refetched[r.ID] = true
	}
	out := make([]types.Record, 0, len(cache)+len(fetched))
	for _, r := range cache {
		if d.deleted[r.ID] || refetched[r.ID] {
			continue
		}
		out = append(out, r)
	}
	out = append(out, fetched...)
	return sortRecords(out)
}

// sortRecords orders records by ID and drops duplicate IDs, keeping the
// last occurrence.
func sortRecords(recs []types.Record) []types.Record {
	byID := make(map[string]types.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]types.Record, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func stampsOf(recs []types.Record) []types.Stamp {
	out := make([]types.Stamp, len(recs))
	for i, r := range recs {
		out[i] = r.Stamp()
	}
	return out
}
