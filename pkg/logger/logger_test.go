package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// logLine logs one line through fn and returns it decoded.
func logLine(t *testing.T, level string, fn func(l *slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(NewWithWriter("gamelog-accounts", level, &buf))
	if buf.Len() == 0 {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func spanContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestWithContext(t *testing.T) {
	traced, sc := spanContext(t)

	tests := []struct {
		name    string
		ctx     context.Context
		want    map[string]string
		missing []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background(),
			missing: []string{"correlation_id", "user_id", "trace_id", "span_id"},
		},
		{
			name:    "correlation id only",
			ctx:     WithCorrelationID(context.Background(), "req-123"),
			want:    map[string]string{"correlation_id": "req-123"},
			missing: []string{"user_id", "trace_id"},
		},
		{
			name: "authenticated and traced",
			ctx:  WithUserID(WithCorrelationID(traced, "req-9"), "7b1c0b9e-0000-4000-8000-000000000001"),
			want: map[string]string{
				"correlation_id": "req-9",
				"user_id":        "7b1c0b9e-0000-4000-8000-000000000001",
				"trace_id":       sc.TraceID().String(),
				"span_id":        sc.SpanID().String(),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := logLine(t, "info", func(l *slog.Logger) { WithContext(tc.ctx, l).Info("hello") })
			assert.Equal(t, "gamelog-accounts", out["service"])
			for k, v := range tc.want {
				assert.Equal(t, v, out[k], k)
			}
			for _, k := range tc.missing {
				assert.NotContains(t, out, k)
			}
		})
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, UserIDFromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(ctx))
}

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	l := NewWithWriter("svc", "debug", &bytes.Buffer{})
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
}

func TestRedaction(t *testing.T) {
	out := logLine(t, "info", func(l *slog.Logger) {
		l.Info("login",
			"password", "hunter22",
			"Remember_Token", "raw-secret",
			"authorization", "Bearer abc",
			"email", "alice@example.com",
		)
	})

	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "[REDACTED]", out["Remember_Token"])
	assert.Equal(t, "[REDACTED]", out["authorization"])
	assert.Equal(t, "alice@example.com", out["email"])
}

func TestLevelFiltering(t *testing.T) {
	assert.Nil(t, logLine(t, "warn", func(l *slog.Logger) { l.Info("dropped") }))

	out := logLine(t, "debug", func(l *slog.Logger) { l.Debug("kept") })
	require.NotNil(t, out)
	assert.Contains(t, out, "source", "debug level adds source locations")
}

func TestMaskEmail(t *testing.T) {
	for in, want := range map[string]string{
		"alice@example.com": "a****@example.com",
		"b@example.com":     "b@example.com",
		"not-an-email":      "[REDACTED]",
		"@example.com":      "[REDACTED]",
	} {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
