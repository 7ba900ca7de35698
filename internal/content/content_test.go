package content

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

func rec(id string, fields map[string]any) types.Record {
	return types.Record{ID: id, Fields: fields}
}

func TestFlattenKeysAndOrder(t *testing.T) {
	table := types.TableConfig{Name: "Projects", SortField: "Year", Descending: true}
	records := []types.Record{
		rec("recB", map[string]any{"Title": "Short", "Year": float64(2019)}),
		rec("recA", map[string]any{"Title": "Feature", "Year": float64(2023), "Release Date": "2023-09-01"}),
		rec("recC", map[string]any{"Title": "Untitled"}),
	}

	got := Flatten(table, records)

	want := []map[string]any{
		{"id": "recA", "title": "Feature", "year": float64(2023), "releaseDate": "2023-09-01"},
		{"id": "recB", "title": "Short", "year": float64(2019)},
		{"id": "recC", "title": "Untitled"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenTiesFallBackToID(t *testing.T) {
	table := types.TableConfig{Name: "Clients", SortField: "Name"}
	got := Flatten(table, []types.Record{
		rec("rec2", map[string]any{"Name": "Acme"}),
		rec("rec1", map[string]any{"Name": "Acme"}),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "rec1", got[0]["id"])
	assert.Equal(t, "rec2", got[1]["id"])
}

func TestFlattenSlimsAttachments(t *testing.T) {
	table := types.TableConfig{Name: "Projects"}
	got := Flatten(table, []types.Record{
		rec("rec1", map[string]any{
			"Poster": []any{map[string]any{
				"id":         "att1",
				"url":        "https://cdn.example/poster.jpg",
				"filename":   "poster.jpg",
				"type":       "image/jpeg",
				"width":      float64(800),
				"thumbnails": map[string]any{"small": map[string]any{"url": "x"}},
			}},
			"Tags": []any{"drama", "short"},
		}),
	})

	poster := got[0]["poster"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{
		"url":      "https://cdn.example/poster.jpg",
		"filename": "poster.jpg",
		"type":     "image/jpeg",
		"width":    float64(800),
	}, poster)
	assert.Equal(t, []any{"drama", "short"}, got[0]["tags"])
}

func TestBuildIsDeterministic(t *testing.T) {
	tables := []types.TableConfig{{Name: "Projects", SortField: "Year"}, {Name: "Press"}}
	records := map[string][]types.Record{
		"Projects": {
			rec("rec3", map[string]any{"Year": float64(2020)}),
			rec("rec1", map[string]any{"Year": float64(2018)}),
		},
	}
	reordered := map[string][]types.Record{
		"Projects": {records["Projects"][1], records["Projects"][0]},
	}

	a, err := json.Marshal(Build(tables, records))
	require.NoError(t, err)
	b, err := json.Marshal(Build(tables, reordered))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	// Unfetched tables still get a key.
	assert.Contains(t, string(a), `"press":[]`)
}

func TestFlattenCollidingFieldNames(t *testing.T) {
	table := types.TableConfig{Name: "Projects"}
	records := []types.Record{rec("recA", map[string]any{
		"Release Year": "2019",
		"Release-Year": "2020",
		"Release_Year": "2021",
	})}

	first, err := json.Marshal(Flatten(table, records))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := json.Marshal(Flatten(table, records))
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}

	got := Flatten(table, records)
	require.Len(t, got, 1)
	assert.Equal(t, "2019", got[0]["releaseYear"])
}

func TestFlattenIDFieldShadowedByRecordID(t *testing.T) {
	got := Flatten(types.TableConfig{Name: "Projects"}, []types.Record{
		rec("recA", map[string]any{"ID": "P-001", "Title": "Feature"}),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "recA", got[0]["id"])
	assert.Equal(t, "Feature", got[0]["title"])
}
