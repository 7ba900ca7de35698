package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sitesync/internal/syncer"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

type fakeRunner struct {
	mu     sync.Mutex
	forces []bool
	res    *syncer.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, opts syncer.Options) (*syncer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forces = append(f.forces, opts.Force)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	if opts.Force {
		res.Mode = types.ModeFull
	}
	return &res, nil
}

type nopCloser struct{ closed *int }

func (c nopCloser) Close() error {
	*c.closed++
	return nil
}

func newTestHandler(t *testing.T, r *fakeRunner, setupErr error) (*Handler, *int) {
	t.Helper()
	closed := new(int)
	h, err := New(func() (Runner, io.Closer, error) {
		if setupErr != nil {
			return nil, nil, setupErr
		}
		return r, nopCloser{closed}, nil
	}, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	return h, closed
}

func cachedResult() *syncer.Result {
	return &syncer.Result{
		Mode:      types.ModeCached,
		RunID:     "run-1",
		Reason:    "no table timestamps changed",
		Checksum:  "abc123",
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSyncReportsModeHeader(t *testing.T) {
	r := &fakeRunner{res: cachedResult()}
	h, closed := newTestHandler(t, r, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cached", rec.Header().Get(HeaderMode))
	assert.Equal(t, "run-1", rec.Header().Get(HeaderRunID))
	assert.Equal(t, "abc123", rec.Header().Get(HeaderChecksum))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body syncer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ModeCached, body.Mode)
	assert.Equal(t, "no table timestamps changed", body.Reason)
	assert.Equal(t, []bool{false}, r.forces)
	assert.Equal(t, 1, *closed)
}

func TestSyncForceParam(t *testing.T) {
	tests := []struct {
		query string
		force bool
		mode  string
	}{
		{"?force=true", true, "full"},
		{"?force=1", true, "full"},
		{"?force=false", false, "cached"},
		{"", false, "cached"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := &fakeRunner{res: cachedResult()}
			h, _ := newTestHandler(t, r, nil)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync"+tt.query, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.mode, rec.Header().Get(HeaderMode))
			assert.Equal(t, []bool{tt.force}, r.forces)
		})
	}
}

func TestSyncInvalidForce(t *testing.T) {
	r := &fakeRunner{res: cachedResult()}
	h, _ := newTestHandler(t, r, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync?force=maybe", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, r.forces)
}

func TestSyncRejectsGet(t *testing.T) {
	r := &fakeRunner{res: cachedResult()}
	h, _ := newTestHandler(t, r, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, r.forces)
}

func TestSyncFailureReturnsError(t *testing.T) {
	r := &fakeRunner{err: errors.New("write snapshot: disk full")}
	h, closed := newTestHandler(t, r, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderMode))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "disk full")
	assert.Equal(t, 1, *closed)
}

func TestSyncMissingCredentials(t *testing.T) {
	r := &fakeRunner{res: cachedResult()}
	h, _ := newTestHandler(t, r, types.ErrMissingCredentials)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "credentials")
	assert.Empty(t, r.forces)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, &fakeRunner{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, &fakeRunner{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitesync_sync_fallbacks_total")
}
