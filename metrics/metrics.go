// Package metrics exposes Prometheus collectors for the compliance engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adherence",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	toggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "compliance",
			Name:      "toggles_total",
			Help:      "Item toggles by outcome (created, updated, unchanged, rejected, error).",
		},
		[]string{"outcome"},
	)

	toggleRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "compliance",
			Name:      "toggle_retries_total",
			Help:      "Automatic retries of a failed toggle.",
		},
	)

	duplicatesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "reconcile",
			Name:      "duplicates_removed_total",
			Help:      "Duplicate records deleted after a merge.",
		},
	)

	partialFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "reconcile",
			Name:      "partial_failures_total",
			Help:      "Merges that left duplicates behind.",
		},
	)

	cascadeDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "plans",
			Name:      "cascade_deleted_records_total",
			Help:      "Records removed when a plan left the assigned state.",
		},
	)

	unknownItems = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "compliance",
			Name:      "unknown_items_total",
			Help:      "Toggles naming an item outside the plan's current list.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		toggles,
		toggleRetries,
		duplicatesRemoved,
		partialFailures,
		cascadeDeleted,
		unknownItems,
	)
}

// Handler serves the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHTTP records count and latency per chi route pattern.
func InstrumentHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func RecordToggle(outcome string)   { toggles.WithLabelValues(outcome).Inc() }
func RecordToggleRetry()            { toggleRetries.Inc() }
func RecordDuplicatesRemoved(n int) { duplicatesRemoved.Add(float64(n)) }
func RecordPartialFailure()         { partialFailures.Inc() }
func RecordCascadeDeleted(n int)    { cascadeDeleted.Add(float64(n)) }
func RecordUnknownItem()            { unknownItems.Inc() }
