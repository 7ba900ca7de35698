// Package server exposes sync runs over HTTP so a deploy hook or scheduler
// can trigger them.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/sitesync/internal/syncer"
)

// Response headers describing the run.
const (
	HeaderMode     = "X-Sync-Mode"
	HeaderRunID    = "X-Sync-Run-Id"
	HeaderChecksum = "X-Sync-Checksum"
)

// Runner performs one sync.
type Runner interface {
	Run(ctx context.Context, opts syncer.Options) (*syncer.Result, error)
}

// Factory builds a Runner for one request. The closer releases whatever the
// runner holds open (the snapshot store).
type Factory func() (Runner, io.Closer, error)

// Handler serves POST /sync, GET /healthz and GET /metrics.
type Handler struct {
	factory Factory
	log     *zap.Logger
	mux     *http.ServeMux

	// mu serializes runs in this process.
	mu sync.Mutex
}

// New returns a Handler. Sync metrics are registered with reg when non-nil.
func New(factory Factory, log *zap.Logger, reg *prometheus.Registry) (*Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{factory: factory, log: log, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /sync", h.handleSync)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if reg != nil {
		if err := syncer.RegisterMetrics(reg); err != nil {
			return nil, err
		}
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.mux.ServeHTTP(w, r)
	h.log.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("time", time.Since(start)))
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force parameter: "+v)
			return
		}
		force = b
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	runner, closer, err := h.factory()
	if err != nil {
		h.log.Error("sync setup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer closer.Close()

	res, err := runner.Run(r.Context(), syncer.Options{Force: force})
	if err != nil {
		h.log.Error("sync failed", zap.Bool("force", force), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set(HeaderMode, string(res.Mode))
	w.Header().Set(HeaderRunID, res.RunID)
	w.Header().Set(HeaderChecksum, res.Checksum)
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
