package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all boundary-registry metrics
const namespace = "boundary_registry"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels (value is always 1)
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// IngestJobsTotal counts source jobs by terminal outcome
var IngestJobsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_jobs_total",
		Help:      "Total source ingestion jobs by outcome",
	},
	[]string{"outcome"}, // succeeded|skipped|failed_permanent
)

// IngestRetriesTotal counts fetch retries across all source jobs
var IngestRetriesTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_retries_total",
		Help:      "Total fetch retries across source jobs",
	},
)

// IngestBoundariesTotal counts boundaries by validation outcome
var IngestBoundariesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_boundaries_total",
		Help:      "Total boundaries processed by validation outcome",
	},
	[]string{"outcome"}, // accepted|rejected|duplicate
)

// IngestRunDuration tracks end-to-end ingestion run duration
var IngestRunDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_run_duration_seconds",
		Help:      "Duration of complete ingestion runs in seconds",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
	},
)

// TreeBuildDuration tracks Merkle tree construction time per layer
var TreeBuildDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tree_build_duration_seconds",
		Help:      "Duration of Merkle layer tree builds in seconds",
		Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 30},
	},
	[]string{"layer"},
)

// SnapshotLeaves reports the leaf count of the most recent snapshot
var SnapshotLeaves = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_leaves",
		Help:      "Leaf count of the most recently committed snapshot",
	},
)

// ResolveRequestsTotal counts resolution requests by outcome
var ResolveRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolve_requests_total",
		Help:      "Total boundary resolution requests",
	},
	[]string{"outcome"}, // hit|not_found|error
)

// Init registers runtime collectors and sets build info
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
