package syncer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// SyncRuns counts completed runs by mode.
var SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sitesync",
	Subsystem: "sync",
	Name:      "runs_total",
	Help:      "Completed sync runs by mode.",
}, []string{"mode"})

// SyncRecords counts classified records by table and change class.
var SyncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sitesync",
	Subsystem: "sync",
	Name:      "records_total",
	Help:      "Records seen by completed runs, by table and change class.",
}, []string{"table", "change"})

// SyncFallbacks counts incremental runs downgraded to full.
var SyncFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "sitesync",
	Subsystem: "sync",
	Name:      "fallbacks_total",
	Help:      "Incremental checks that fell back to a full sync.",
})

// SyncFailures counts runs that returned an error.
var SyncFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "sitesync",
	Subsystem: "sync",
	Name:      "failures_total",
	Help:      "Sync runs that failed without producing a snapshot.",
})

// SyncDuration observes run duration by mode.
var SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "sitesync",
	Subsystem: "sync",
	Name:      "duration_seconds",
	Help:      "Duration of completed sync runs by mode.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
}, []string{"mode"})

// RegisterMetrics registers the sync collectors with reg. Collectors that
// are already registered are not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{SyncRuns, SyncRecords, SyncFallbacks, SyncFailures, SyncDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func observe(res *Result) {
	mode := string(res.Mode)
	SyncRuns.WithLabelValues(mode).Inc()
	SyncDuration.WithLabelValues(mode).Observe(res.Duration.Seconds())
	for table, ch := range res.Tables {
		add := func(change types.Change, n int) {
			if n > 0 {
				SyncRecords.WithLabelValues(table, string(change)).Add(float64(n))
			}
		}
		add(types.ChangeNew, ch.New)
		add(types.ChangeChanged, ch.Changed)
		add(types.ChangeUnchanged, ch.Unchanged)
		add(types.ChangeDeleted, ch.Deleted)
	}
	if res.FallbackError != "" {
		SyncFallbacks.Inc()
	}
}
