package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speaklexi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speaklexi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Domain metrics
	registrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speaklexi_registrations_total",
			Help: "Total number of accounts registered",
		},
	)

	accountLifecycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speaklexi_account_lifecycle_total",
			Help: "Account lifecycle transitions by event",
		},
		[]string{"event"},
	)

	answersGradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speaklexi_answers_graded_total",
			Help: "Total graded answers by outcome",
		},
		[]string{"correct"},
	)

	lessonsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speaklexi_lessons_completed_total",
			Help: "Total lesson completions recorded",
		},
	)

	xpAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speaklexi_xp_awarded_total",
			Help: "Total experience points awarded",
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speaklexi_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)
)

// Metrics returns a middleware that records Prometheus metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			// The route pattern is only known after routing.
			path := normalizePath(r)
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

			if wrapped.status >= 400 {
				errorType := "client_error"
				if wrapped.status >= 500 {
					errorType = "server_error"
				}
				errorsTotal.WithLabelValues(errorType).Inc()
			}
		})
	}
}

// normalizePath normalizes URL paths to prevent cardinality explosion.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	// /v1/lessons/550e8400-e29b-41d4-a716-446655440000 -> /v1/lessons/{id}
	segments := strings.Split(r.URL.Path, "/")
	for i, seg := range segments {
		if len(seg) == 36 && strings.Count(seg, "-") == 4 {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// IncrementRegistrations counts a new account.
func IncrementRegistrations() {
	registrationsTotal.Inc()
}

// RecordLifecycle counts an account lifecycle event such as "deactivated",
// "reactivated" or "purged".
func RecordLifecycle(event string, n int) {
	accountLifecycleTotal.WithLabelValues(event).Add(float64(n))
}

// RecordGrade counts a graded answer.
func RecordGrade(correct bool) {
	answersGradedTotal.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

// IncrementLessonsCompleted counts a recorded lesson completion.
func IncrementLessonsCompleted() {
	lessonsCompletedTotal.Inc()
}

// AddXPAwarded adds to the awarded experience total.
func AddXPAwarded(amount int) {
	xpAwardedTotal.Add(float64(amount))
}
