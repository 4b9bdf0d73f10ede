package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests no route pattern matched, keeping label
// cardinality bounded under path scanning.
const unmatchedRoute = "unmatched"

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamelog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route pattern and status code.",
		},
		[]string{"service", "method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gamelog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			// bcrypt dominates login and register latency.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"service", "method", "route", "status"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gamelog",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Size of HTTP response bodies.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 6),
		},
		[]string{"service", "route"},
	)

	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gamelog",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		},
		[]string{"service"},
	)
)

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

// PrometheusMetrics records request counts, latency and response sizes
// labelled by chi route pattern rather than raw path.
func PrometheusMetrics(serviceName string) func(next http.Handler) http.Handler {
	inFlight := httpInFlight.WithLabelValues(serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inFlight.Inc()
			defer inFlight.Dec()

			rec := newStatusRecorder(w)
			bytesBefore := rec.bytes
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			status := strconv.Itoa(rec.status)
			httpRequests.WithLabelValues(serviceName, r.Method, route, status).Inc()
			httpDuration.WithLabelValues(serviceName, r.Method, route, status).Observe(time.Since(start).Seconds())
			httpResponseSize.WithLabelValues(serviceName, route).Observe(float64(rec.bytes - bytesBefore))
		})
	}
}
