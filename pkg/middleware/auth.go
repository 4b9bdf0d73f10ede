package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

type contextKeyType string

const claimsKey contextKeyType = "auth_claims"

// Claims describes the authenticated principal behind a request.
type Claims struct {
	UserID string
	Email  string
	Role   string
	Active bool
}

// TokenValidator resolves a bearer token into claims. Returning an
// *apperrors.AppError controls the status and code written to the client.
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth rejects requests without a valid bearer token and stores the resolved
// claims in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, apperrors.Unauthenticated("missing or malformed bearer token"))
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				var appErr *apperrors.AppError
				if !errors.As(err, &appErr) {
					appErr = apperrors.Unauthenticated("could not validate credentials")
				}
				writeAuthError(w, appErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireActive rejects authenticated principals whose account is not active.
// It must be mounted after Auth.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeAuthError(w, apperrors.Unauthenticated("authentication required"))
			return
		}
		if !claims.Active {
			writeAuthError(w, apperrors.AccountInactive())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithClaims returns a context carrying the given claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, appErr *apperrors.AppError) {
	if appErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
