package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors. It is separate from the
	// default registry so tests can gather it without global side effects.
	Registry = prometheus.NewRegistry()

	receiptsCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lapaksayur",
			Subsystem: "receipts",
			Name:      "committed_total",
			Help:      "Receipts committed to the sales ledger.",
		},
	)

	receiptRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lapaksayur",
			Subsystem: "receipts",
			Name:      "rejected_total",
			Help:      "Receipt creations rejected before commit, by reason.",
		},
		[]string{"reason"},
	)

	commitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lapaksayur",
			Subsystem: "receipts",
			Name:      "commit_conflicts_total",
			Help:      "Receipt commits that hit a write conflict and were retried or surfaced.",
		},
	)

	commitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lapaksayur",
			Subsystem: "receipts",
			Name:      "commit_duration_seconds",
			Help:      "Duration of receipt creation including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lapaksayur",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lapaksayur",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	snapshotRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lapaksayur",
			Subsystem: "scheduler",
			Name:      "snapshot_runs_total",
			Help:      "End-of-day report snapshot runs.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		receiptsCommitted,
		receiptRejections,
		commitConflicts,
		commitDuration,
		httpRequests,
		httpDuration,
		snapshotRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordReceiptCommitted(duration time.Duration) {
	receiptsCommitted.Inc()
	commitDuration.Observe(duration.Seconds())
}

func RecordReceiptRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	receiptRejections.WithLabelValues(reason).Inc()
}

func RecordCommitConflict() {
	commitConflicts.Inc()
}

func RecordHTTPRequest(method string, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordSnapshotRun(success bool) {
	snapshotRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
}
