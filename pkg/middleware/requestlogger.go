package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, user_id, trace_id and span_id when present. Handlers read it
// with logger.FromContext.
//
// Mount it after RequestLogging and Tracing. Mounting it again after Auth
// adds the authenticated user id.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
