package airtable

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(types.AirtableConfig{
		APIKey:   "secret",
		BaseID:   "appBASE",
		Endpoint: srv.URL,
	})
	require.NoError(t, err)
	return c, &hits
}

func TestNewMissingCredentials(t *testing.T) {
	tests := []types.AirtableConfig{
		{BaseID: "appBASE"},
		{APIKey: "secret"},
		{},
	}
	for _, cfg := range tests {
		_, err := New(cfg)
		assert.ErrorIs(t, err, types.ErrMissingCredentials)
	}
}

func TestListRecordsPaging(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/appBASE/Press Coverage", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))

		switch r.URL.Query().Get("offset") {
		case "":
			w.Write([]byte(`{"records":[{"id":"rec1","createdTime":"2024-01-01T00:00:00.000Z","fields":{"Title":"One","Last Modified":"2024-02-01T10:00:00.000Z"}}],"offset":"itr2"}`))
		case "itr2":
			w.Write([]byte(`{"records":[{"id":"rec2","createdTime":"2024-01-03T00:00:00.000Z","fields":{"Title":"Two"}}]}`))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})

	recs, err := c.ListRecords(context.Background(), "Press Coverage", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	assert.Equal(t, "rec1", recs[0].ID)
	assert.Equal(t, "One", recs[0].Fields["Title"])
	assert.True(t, recs[0].LastModified.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)))

	// No timestamp field: falls back to createdTime.
	assert.True(t, recs[1].LastModified.Equal(recs[1].CreatedTime))
}

func TestListRecordsByID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OR(RECORD_ID()='rec1',RECORD_ID()='rec9')", r.URL.Query().Get("filterByFormula"))
		w.Write([]byte(`{"records":[]}`))
	})

	recs, err := c.ListRecords(context.Background(), "Projects", []string{"rec1", "rec9"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestListStampsRequestsOnlyTimestampField(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"Last Modified"}, r.URL.Query()["fields[]"])
		w.Write([]byte(`{"records":[{"id":"rec1","createdTime":"2024-01-01T00:00:00.000Z","fields":{"Last Modified":"2024-05-05T05:05:05.000Z"}}]}`))
	})

	stamps, err := c.ListStamps(context.Background(), "Projects")
	require.NoError(t, err)
	require.Len(t, stamps, 1)
	assert.Equal(t, "rec1", stamps[0].ID)
	assert.True(t, stamps[0].LastModified.Equal(time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)))
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
	}{
		{"object error", http.StatusUnprocessableEntity, `{"error":{"type":"INVALID_FILTER_BY_FORMULA","message":"bad formula"}}`, "INVALID_FILTER_BY_FORMULA"},
		{"string error", http.StatusNotFound, `{"error":"NOT_FOUND"}`, "NOT_FOUND"},
		{"no body", http.StatusTooManyRequests, ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.ListRecords(context.Background(), "Projects", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrRemoteFetch)
			assert.True(t, IsAPIError(err, tt.status))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantType, apiErr.Type)
		})
	}
}

func TestMalformedTimestamp(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"id":"rec1","createdTime":"2024-01-01T00:00:00.000Z","fields":{"Last Modified":"yesterday"}}]}`))
	})

	_, err := c.ListStamps(context.Background(), "Projects")
	assert.Error(t, err)
}

func TestIDFormulaEscapesQuotes(t *testing.T) {
	assert.Equal(t, `OR(RECORD_ID()='a\'b')`, idFormula([]string{"a'b"}))
}
