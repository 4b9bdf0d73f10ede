package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

const tracerPrefix = "github.com/Danreby/Back-end-Advanced-MVP-API/"

// Tracing starts a server span per request, continuing any W3C trace context
// in the inbound headers and echoing it on the response. Paths in skipPaths
// (probes, scrapes) get no span. The span is renamed to the chi route pattern
// once routing has run, and tagged with the correlation id when RequestLogging
// sits in front of it.
func Tracing(serviceName string, skipPaths ...string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerPrefix + serviceName)

	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			propagator := otel.GetTextMapPropagator()
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			attrs := []attribute.KeyValue{
				semconv.HTTPMethod(r.Method),
				semconv.HTTPScheme(scheme(r)),
				semconv.UserAgentOriginal(r.UserAgent()),
				attribute.String("http.client_ip", r.RemoteAddr),
			}
			if id := logger.CorrelationIDFromContext(ctx); id != "" {
				attrs = append(attrs, attribute.String("correlation_id", id))
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(attribute.String("http.route", pattern))
				}
			}

			span.SetAttributes(semconv.HTTPStatusCode(rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		return proto
	}
	return "http"
}
