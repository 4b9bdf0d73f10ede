package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	ctxCorrelationID ctxKey = iota
	ctxUserID
	ctxLogger
)

const redacted = "[REDACTED]"

// Attribute keys whose values never reach the output, compared case-insensitively.
var secretKeys = map[string]bool{
	"password":       true,
	"token":          true,
	"access_token":   true,
	"remember_token": true,
	"secret":         true,
	"authorization":  true,
}

// New returns a JSON logger on stdout tagged with service.
func New(service, level string) *slog.Logger {
	return NewWithWriter(service, level, os.Stdout)
}

// NewWithWriter is New with an explicit destination. Debug level also
// records source locations.
func NewWithWriter(service, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if secretKeys[strings.ToLower(a.Key)] {
				a.Value = slog.StringValue(redacted)
			}
			return a
		},
	})
	return slog.New(h).With(slog.String("service", service))
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	levels := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	if lvl, ok := levels[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// MaskEmail hides the local part except its first rune,
// "alice@example.com" -> "a****@example.com".
func MaskEmail(email string) string {
	local, domain, ok := cutLast(email, '@')
	if !ok || local == "" {
		return redacted
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}

func cutLast(s string, sep byte) (before, after string, found bool) {
	if i := strings.LastIndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxCorrelationID, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxCorrelationID)
}

// WithUserID records the authenticated user for log enrichment.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

// NewContext stores the request-scoped logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLogger, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithContext adds whichever of correlation_id, user_id and the active span's
// trace_id/span_id are present in ctx.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	var attrs []any
	if id := CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	if id := UserIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("user_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
