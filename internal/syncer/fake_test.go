package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

var base = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// fakeSource is an in-memory remote base that counts calls per table.
type fakeSource struct {
	mu      sync.Mutex
	tables  map[string][]types.Record
	stamps  map[string]int
	lists   map[string]int
	idLists map[string][][]string

	stampErr  error
	listErr   error
	idListErr error
	// hideFromIDFetch drops records from ID-filtered listings only.
	hideFromIDFetch map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tables:  make(map[string][]types.Record),
		stamps:  make(map[string]int),
		lists:   make(map[string]int),
		idLists: make(map[string][][]string),
	}
}

func (f *fakeSource) put(table, id string, minutes int, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := types.Record{
		ID:           id,
		CreatedTime:  base,
		LastModified: base.Add(time.Duration(minutes) * time.Minute),
		Fields:       fields,
	}
	for i, r := range f.tables[table] {
		if r.ID == id {
			f.tables[table][i] = rec
			return
		}
	}
	f.tables[table] = append(f.tables[table], rec)
}

func (f *fakeSource) remove(table, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tables[table][:0]
	for _, r := range f.tables[table] {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	f.tables[table] = kept
}

func (f *fakeSource) resetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamps = make(map[string]int)
	f.lists = make(map[string]int)
	f.idLists = make(map[string][][]string)
}

func (f *fakeSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.stamps {
		n += c
	}
	for _, c := range f.lists {
		n += c
	}
	return n
}

func (f *fakeSource) ListStamps(ctx context.Context, table string) ([]types.Stamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamps[table]++
	if f.stampErr != nil {
		return nil, f.stampErr
	}
	out := make([]types.Stamp, 0, len(f.tables[table]))
	for _, r := range f.tables[table] {
		out = append(out, r.Stamp())
	}
	return out, nil
}

func (f *fakeSource) ListRecords(ctx context.Context, table string, ids []string) ([]types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[table]++
	if len(ids) > 0 {
		cp := append([]string(nil), ids...)
		sort.Strings(cp)
		f.idLists[table] = append(f.idLists[table], cp)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(ids) > 0 && f.idListErr != nil {
		return nil, f.idListErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []types.Record
	for _, r := range f.tables[table] {
		if len(ids) > 0 && (!want[r.ID] || f.hideFromIDFetch[r.ID]) {
			continue
		}
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		r.Fields = fields
		out = append(out, r)
	}
	return out, nil
}

// failingStore wraps a store and fails every Save.
type failingStore struct {
	types.Store
}

var errDiskFull = errors.New("disk full")

func (f failingStore) Save(ctx context.Context, snap *types.Snapshot) error {
	return errors.Join(types.ErrStoreWrite, errDiskFull)
}
