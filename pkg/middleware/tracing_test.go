package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

const inboundTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exp
}

func tracedRouter(skip ...string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Tracing("gamelog-accounts", skip...))
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {})
	r.Post("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Post("/api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func spanAttr(s tracetest.SpanStub, key string) (string, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestTracing_ServerSpans(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantName   string
		wantStatus string
		wantCode   codes.Code
	}{
		{"named by route pattern", http.MethodGet, "/api/v1/users/42", "GET /api/v1/users/{id}", "200", codes.Unset},
		{"client error is not a span error", http.MethodPost, "/api/v1/auth/login", "POST /api/v1/auth/login", "401", codes.Unset},
		{"server error marks the span", http.MethodPost, "/api/v1/auth/register", "POST /api/v1/auth/register", "500", codes.Error},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exp := installTracer(t)
			tracedRouter().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))

			spans := exp.GetSpans()
			require.Len(t, spans, 1)
			s := spans[0]
			assert.Equal(t, tc.wantName, s.Name)
			assert.Equal(t, tc.wantCode, s.Status.Code)

			status, ok := spanAttr(s, "http.status_code")
			require.True(t, ok)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	exp := installTracer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("traceparent", inboundTraceparent)
	rec := httptest.NewRecorder()
	tracedRouter().ServeHTTP(rec, req)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())

	echoed := rec.Header().Get("traceparent")
	require.NotEmpty(t, echoed)
	assert.Contains(t, echoed, "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.NotEqual(t, inboundTraceparent, echoed, "response carries the server span id")
}

func TestTracing_TagsCorrelationID(t *testing.T) {
	exp := installTracer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "req-abc"))
	tracedRouter().ServeHTTP(httptest.NewRecorder(), req)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	got, ok := spanAttr(spans[0], "correlation_id")
	require.True(t, ok)
	assert.Equal(t, "req-abc", got)
}

func TestTracing_SkipsProbePaths(t *testing.T) {
	exp := installTracer(t)
	r := tracedRouter("/health/live", "/metrics")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, exp.GetSpans())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
	assert.Len(t, exp.GetSpans(), 1)
}

func TestScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http", scheme(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", scheme(req))

	req.Header.Set("X-Forwarded-Proto", "gopher")
	assert.Equal(t, "http", scheme(req))
}
