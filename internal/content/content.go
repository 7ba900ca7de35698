// Package content turns raw table records into the arrays the site pages read.
//
// Output is a pure function of the records: the same records always produce
// the same bytes, whichever sync mode fetched them.
package content

import (
	"sort"
	"strings"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// attachmentKeys are the attachment properties kept in content. Thumbnails
// and signed variants are dropped.
var attachmentKeys = []string{"url", "filename", "type", "width", "height"}

// Build flattens every configured table. Tables missing from records yield
// an empty array so the site never sees a missing key.
func Build(tables []types.TableConfig, records map[string][]types.Record) map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(tables))
	for _, t := range tables {
		out[t.ContentKey()] = Flatten(t, records[t.Name])
	}
	return out
}

// Flatten converts one table's records into content items ordered by the
// table's sort field, then by record ID.
func Flatten(table types.TableConfig, records []types.Record) []map[string]any {
	sorted := make([]types.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(table, sorted[i], sorted[j])
	})

	items := make([]map[string]any, 0, len(sorted))
	for _, rec := range sorted {
		item := make(map[string]any, len(rec.Fields)+1)
		for _, name := range fieldNames(rec.Fields) {
			key := types.LowerCamel(name)
			if key == "" || key == "id" {
				continue
			}
			// Names that collapse to the same key: the first in sorted
			// order wins.
			if _, taken := item[key]; taken {
				continue
			}
			item[key] = flattenValue(rec.Fields[name])
		}
		// A remote field named "ID" (or anything mapping to "id") is
		// shadowed by the record ID.
		item["id"] = rec.ID
		items = append(items, item)
	}
	return items
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func less(table types.TableConfig, a, b types.Record) bool {
	if table.SortField != "" {
		av, bv := a.Fields[table.SortField], b.Fields[table.SortField]
		// Missing values sort last in either direction.
		if (av == nil) != (bv == nil) {
			return bv == nil
		}
		c := compare(av, bv)
		if c != 0 {
			if table.Descending {
				return c > 0
			}
			return c < 0
		}
	}
	return a.ID < b.ID
}

// compare orders numbers before strings, then other types.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case float64:
		return 0
	case string:
		return 1
	case nil:
		return 3
	}
	return 2
}

// flattenValue trims attachment objects down to attachmentKeys and leaves
// everything else untouched.
func flattenValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	for i, el := range list {
		m, ok := el.(map[string]any)
		if !ok || !isAttachment(m) {
			out[i] = el
			continue
		}
		slim := make(map[string]any, len(attachmentKeys))
		for _, k := range attachmentKeys {
			if val, ok := m[k]; ok {
				slim[k] = val
			}
		}
		out[i] = slim
	}
	return out
}

func isAttachment(m map[string]any) bool {
	_, hasURL := m["url"]
	_, hasName := m["filename"]
	return hasURL && hasName
}
