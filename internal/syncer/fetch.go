package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// Tables are independent, so each fetch runs in its own goroutine and
// writes only its own result slot. The first error cancels the rest.

func (s *Syncer) fetchStamps(ctx context.Context, names []string) ([][]types.Stamp, error) {
	out := make([][]types.Stamp, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Concurrency)
	for i, name := range names {
		eg.Go(func() error {
			stamps, err := s.src.ListStamps(egCtx, name)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			out[i] = stamps
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Syncer) fetchAll(ctx context.Context, names []string) ([][]types.Record, error) {
	out := make([][]types.Record, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Concurrency)
	for i, name := range names {
		eg.Go(func() error {
			recs, err := s.src.ListRecords(egCtx, name, nil)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			out[i] = recs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchChanged lists each changed table either whole or by the IDs its diff
// marked new or changed. Tables with only deletions get an empty result
// without a request. Every changed table has an entry in the returned map.
func (s *Syncer) fetchChanged(ctx context.Context, changed []string, diffs map[string]tableDiff, wholeTable map[string]bool) (map[string][]types.Record, error) {
	slots := make([][]types.Record, len(changed))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Concurrency)
	for i, name := range changed {
		var ids []string
		if !wholeTable[name] {
			ids = diffs[name].fetch
			if len(ids) == 0 {
				continue
			}
		}
		eg.Go(func() error {
			recs, err := s.src.ListRecords(egCtx, name, ids)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			slots[i] = recs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]types.Record, len(changed))
	for i, name := range changed {
		out[name] = slots[i]
	}
	return out, nil
}
