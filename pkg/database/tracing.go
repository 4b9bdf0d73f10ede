package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/database"

var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gamelog",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "Latency of repository queries, by operation and outcome.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	},
	[]string{"operation", "outcome"},
)

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging logs queries slower than threshold as warnings. A zero
// threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// TraceQuery starts a client span for a repository operation and returns the
// function that finishes it:
//
//	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", q)
//	defer func() { end(err) }()
//
// Only the parameterized statement is recorded, never argument values.
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		queryDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())

		slow := slowQueries.Load()
		if slow == nil || elapsed < slow.threshold {
			return
		}
		attrs := []any{
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
			slog.Duration("threshold", slow.threshold),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slow.logger.WarnContext(ctx, "slow query", attrs...)
	}
}
