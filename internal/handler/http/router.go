package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/health"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/middleware"
)

// RouterConfig carries the transport settings of the router.
type RouterConfig struct {
	ServiceName       string
	CORS              middleware.CORSConfig
	Cookie            CookieConfig
	PprofAllowedCIDRs []string
}

// Services groups the collaborators the handlers call.
type Services struct {
	Accounts      AccountService
	Sessions      SessionService
	Confirmations ConfirmationService
	// ValidateToken resolves bearer tokens for protected routes.
	ValidateToken middleware.TokenValidator
}

// NewRouter creates a chi router with all account service routes registered.
func NewRouter(svc Services, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName, "/health/live", "/health/ready", "/metrics"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	authHandler := NewAuthHandler(svc.Accounts, svc.Sessions, svc.Confirmations, cfg.Cookie, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Get("/confirm", authHandler.Confirm)
		r.With(AcceptContentTypes(mediaTypeJSON, mediaTypeForm)).Post("/login", authHandler.Login)
		r.Post("/session", authHandler.Session)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/register", authHandler.Register)
			r.Post("/resend-confirmation", authHandler.ResendConfirmation)
		})
	})

	userHandler := NewUserHandler(svc.Accounts, logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(svc.ValidateToken))
		r.Use(middleware.RequestLogger(logger))

		r.Get("/me", userHandler.GetProfile)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireActive)
			r.Patch("/me", userHandler.UpdateProfile)
			r.Post("/me/password", userHandler.ChangePassword)
		})
	})

	return r
}
