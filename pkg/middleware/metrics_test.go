package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// series returns the sample of c whose labels include all of want, or nil.
func series(t *testing.T, c prometheus.Collector, want map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var found *dto.Metric
	for m := range ch {
		var d dto.Metric
		require.NoError(t, m.Write(&d))
		labels := map[string]string{}
		for _, lp := range d.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, v := range want {
			if labels[k] != v {
				match = false
				break
			}
		}
		if match && found == nil {
			found = &d
		}
	}
	return found
}

func metricsRouter(service string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(service))
	r.Get("/api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	r.Post("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	return r
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	service := "metrics-" + t.Name()
	r := metricsRouter(service)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/users/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))

	ok := series(t, httpRequests, map[string]string{"service": service, "route": "/api/v1/users/{id}", "status": "200"})
	require.NotNil(t, ok)
	assert.Equal(t, 3.0, ok.GetCounter().GetValue())

	denied := series(t, httpRequests, map[string]string{"service": service, "route": "/api/v1/auth/login", "status": "401", "method": "POST"})
	require.NotNil(t, denied)
	assert.Equal(t, 1.0, denied.GetCounter().GetValue())

	latency := series(t, httpDuration, map[string]string{"service": service, "route": "/api/v1/users/{id}"})
	require.NotNil(t, latency)
	assert.Equal(t, uint64(3), latency.GetHistogram().GetSampleCount())

	size := series(t, httpResponseSize, map[string]string{"service": service, "route": "/api/v1/users/{id}"})
	require.NotNil(t, size)
	assert.Equal(t, float64(3*len(`{"data":{}}`)), size.GetHistogram().GetSampleSum())
}

func TestPrometheusMetrics_UnmatchedPathsShareOneLabel(t *testing.T) {
	service := "metrics-" + t.Name()
	r := metricsRouter(service)

	for _, p := range []string{"/wp-admin", "/.env", "/api/v2/anything"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	m := series(t, httpRequests, map[string]string{"service": service, "route": unmatchedRoute, "status": "404"})
	require.NotNil(t, m)
	assert.Equal(t, 3.0, m.GetCounter().GetValue())
}

func TestPrometheusMetrics_InFlightReturnsToZero(t *testing.T) {
	service := "metrics-" + t.Name()
	var during float64

	r := chi.NewRouter()
	r.Use(PrometheusMetrics(service))
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = series(t, httpInFlight, map[string]string{"service": service}).GetGauge().GetValue()
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, 1.0, during)
	assert.Zero(t, series(t, httpInFlight, map[string]string{"service": service}).GetGauge().GetValue())
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

// plainWriter hides the optional interfaces of httptest.ResponseRecorder.
type plainWriter struct{ http.ResponseWriter }

func TestStatusRecorder(t *testing.T) {
	t.Run("records status and size", func(t *testing.T) {
		rec := newStatusRecorder(httptest.NewRecorder())
		rec.WriteHeader(http.StatusCreated)
		_, _ = rec.Write([]byte("hello"))
		assert.Equal(t, http.StatusCreated, rec.status)
		assert.Equal(t, 5, rec.bytes)
	})

	t.Run("does not wrap twice", func(t *testing.T) {
		inner := newStatusRecorder(httptest.NewRecorder())
		assert.Same(t, inner, newStatusRecorder(inner))
	})

	t.Run("flush delegates", func(t *testing.T) {
		under := httptest.NewRecorder()
		newStatusRecorder(under).Flush()
		assert.True(t, under.Flushed)
		assert.NotPanics(t, func() { newStatusRecorder(plainWriter{under}).Flush() })
	})

	t.Run("hijack delegates", func(t *testing.T) {
		under := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
		_, _, err := newStatusRecorder(under).Hijack()
		require.NoError(t, err)
		assert.True(t, under.hijacked)

		_, _, err = newStatusRecorder(plainWriter{httptest.NewRecorder()}).Hijack()
		assert.ErrorIs(t, err, http.ErrNotSupported)
	})

	t.Run("unwrap exposes the original writer", func(t *testing.T) {
		under := httptest.NewRecorder()
		assert.Same(t, under, newStatusRecorder(under).Unwrap())
	})
}
