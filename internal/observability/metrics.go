package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the risk engine service.
type Metrics struct {
	// --- Curve ---
	SwapsApplied    *prometheus.CounterVec
	SwapDuration    *prometheus.HistogramVec
	CurveUpdates    *prometheus.CounterVec
	CurveRejections *prometheus.CounterVec
	SpreadLong      *prometheus.GaugeVec
	SpreadShort     *prometheus.GaugeVec
	ReservePriceGap *prometheus.GaugeVec

	// --- Margin ---
	MarginChecks        *prometheus.CounterVec
	MarginCheckDuration *prometheus.HistogramVec
	MarginFailures      *prometheus.CounterVec
	OracleInvalid       *prometheus.CounterVec

	// --- Ingestion ---
	EventsApplied   *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	NATSPullLatency *prometheus.HistogramVec

	// --- Persistence ---
	SnapshotsWritten    prometheus.Counter
	SnapshotDuration    prometheus.Histogram
	PersistErrors       *prometheus.CounterVec
	PersistBackpressure prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		SwapsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_swaps_applied_total",
			Help: "Fills applied against the virtual curve",
		}, []string{"market", "direction"}),

		SwapDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_swap_duration_seconds",
			Help:    "Time to price and commit one fill",
			Buckets: latencyBuckets,
		}, []string{"market"}),

		CurveUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_curve_updates_total",
			Help: "Committed curve mutations (repeg, k-update, recenter)",
		}, []string{"market", "kind"}),

		CurveRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_curve_rejections_total",
			Help: "Curve mutations rejected pre-commit",
		}, []string{"market", "reason"}),

		SpreadLong: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_spread_long",
			Help: "Current long spread (spread precision)",
		}, []string{"market"}),

		SpreadShort: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_spread_short",
			Help: "Current short spread (spread precision)",
		}, []string{"market"}),

		ReservePriceGap: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_reserve_oracle_gap",
			Help: "Reserve price minus oracle price (price precision)",
		}, []string{"market"}),

		MarginChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_margin_checks_total",
			Help: "Margin calculations served",
		}, []string{"mode"}),

		MarginCheckDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_margin_check_duration_seconds",
			Help:    "Time to value one account",
			Buckets: latencyBuckets,
		}, []string{"mode"}),

		MarginFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_margin_failures_total",
			Help: "Accounts below requirement",
		}, []string{"mode"}),

		OracleInvalid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_oracle_invalid_total",
			Help: "Oracle inputs failing guards",
		}, []string{"market", "reason"}),

		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_events_applied_total",
			Help: "Ingested events applied to stores",
		}, []string{"event_type"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_events_rejected_total",
			Help: "Ingested events rejected (parse, unknown market, math)",
		}, []string{"event_type", "reason"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_nats_pull_latency_seconds",
			Help:    "JetStream publish-to-receive latency per subject",
			Buckets: latencyBuckets,
		}, []string{"subject"}),

		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_snapshots_written_total",
			Help: "Market snapshots written to Postgres",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_snapshot_duration_seconds",
			Help:    "Snapshot write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_persist_backpressure_total",
			Help: "Times ingestion blocked on the persist channel",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}
