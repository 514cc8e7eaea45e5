// Package metrics provides Prometheus metrics for the event alerting engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "eventalerts"
)

// Poll cycle results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultQuiet   = "quiet"
	ResultBusy    = "busy"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts control surface requests by chi route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Poll metrics
var (
	// PollCyclesTotal counts poll cycles by result.
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Total poll cycles",
		},
		[]string{"result"}, // success, error, quiet, busy
	)

	// PollDuration tracks the duration of fetch-to-persist cycles.
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// EventsFetchedTotal counts raw events returned by the remote API.
	EventsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "fetched_total",
			Help:      "Total raw events fetched",
		},
	)

	// EventsFilteredTotal counts new events dropped before merge.
	EventsFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "filtered_total",
			Help:      "Total new events dropped by filters",
		},
		[]string{"filter"}, // priority, expression
	)

	// EventsMergedTotal counts events added to the history.
	EventsMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "merged_total",
			Help:      "Total events merged into the history",
		},
	)

	// EventsStored tracks the history size of the active bucket.
	EventsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stored",
			Help:      "Events held in the active history bucket",
		},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts deliveries by channel and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notification deliveries",
		},
		[]string{"channel", "result"}, // native|in_page, success|failure
	)

	// NotificationClicksTotal counts handled clicks by kind.
	NotificationClicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "clicks_total",
			Help:      "Total notification clicks handled",
		},
		[]string{"kind"}, // body, dismiss, stale
	)

	// OverlayContexts tracks the open in-page contexts.
	OverlayContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "contexts",
			Help:      "Open in-page notification contexts",
		},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
