package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push results.
const (
	ResultOK         = "ok"
	ResultError      = "error"
	ResultSuppressed = "suppressed"
	ResultOffline    = "offline"
)

// Metrics holds Prometheus metrics for the reconciler.
//
// Metrics:
//   - done_sync_pushes_total{collection,result} - outbound writes by result
//   - done_sync_ingested_total{collection,op} - remote deltas applied locally
//   - done_sync_ingest_failures_total{collection} - remote deltas skipped
//   - done_sync_sessions - attached sessions (0 or 1)
type Metrics struct {
	Pushes         *prometheus.CounterVec
	Ingested       *prometheus.CounterVec
	IngestFailures *prometheus.CounterVec
	Sessions       prometheus.Gauge
}

// NewMetrics registers the reconciler metrics with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "done_sync_pushes_total",
				Help: "Outbound document writes by collection and result",
			},
			[]string{"collection", "result"},
		),
		Ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "done_sync_ingested_total",
				Help: "Remote deltas applied to the local store",
			},
			[]string{"collection", "op"},
		),
		IngestFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "done_sync_ingest_failures_total",
				Help: "Remote deltas that could not be applied and were skipped",
			},
			[]string{"collection"},
		),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "done_sync_sessions",
			Help: "Number of attached sync sessions",
		}),
	}
}
