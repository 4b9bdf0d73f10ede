package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/service"
)

// AccountService is the account behaviour the handlers need.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// SessionService issues, restores and ends sessions.
type SessionService interface {
	Login(ctx context.Context, in service.LoginInput) (*domain.Session, error)
	RestoreSession(ctx context.Context, raw, userAgent, ip string) (*domain.Session, error)
	Logout(ctx context.Context, raw string) error
}

// ConfirmationService runs the email confirmation flow.
type ConfirmationService interface {
	VerifyToken(ctx context.Context, token string) (string, error)
	Confirm(ctx context.Context, email string) (*domain.User, bool, error)
	Resend(ctx context.Context, email string) error
}

// RememberCookieName is the cookie carrying the raw remember-me secret.
const RememberCookieName = "remember_token"

// CookieConfig controls the remember cookie attributes.
type CookieConfig struct {
	MaxAge time.Duration
	Secure bool
}

func (c CookieConfig) set(w http.ResponseWriter, raw string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RememberCookieName,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RememberCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func rememberCookie(r *http.Request) string {
	c, err := r.Cookie(RememberCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// clientIP returns the host part of RemoteAddr. Forwarded headers are not
// trusted here; a proxy that rewrites RemoteAddr belongs in front of the router.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
