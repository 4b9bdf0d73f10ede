package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures CORS. Empty methods, headers and MaxAge take the
// defaults below.
type CORSConfig struct {
	// AllowedOrigins are matched exactly; "*" admits every origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
	// AllowCredentials admits the remember cookie cross-origin. With a
	// wildcard the caller's origin is echoed, as browsers refuse "*" here.
	AllowCredentials bool
	// Environment "development" behaves as if "*" were listed.
	Environment string
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"}
)

const defaultCORSMaxAge = 3600

// DefaultCORSConfig is wide open and meant for local development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: defaultCORSMethods,
		AllowedHeaders: defaultCORSHeaders,
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         defaultCORSMaxAge,
		Environment:    "development",
	}
}

// corsPolicy is a CORSConfig resolved into ready-to-send header values.
type corsPolicy struct {
	origins     map[string]bool
	anyOrigin   bool
	credentials bool
	static      http.Header
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		anyOrigin:   cfg.Environment == "development" || slices.Contains(cfg.AllowedOrigins, "*"),
		credentials: cfg.AllowCredentials,
		static:      http.Header{},
	}
	for _, o := range cfg.AllowedOrigins {
		p.origins[o] = o != "*"
	}

	p.static.Set("Access-Control-Allow-Methods", strings.Join(orDefault(cfg.AllowedMethods, defaultCORSMethods), ", "))
	p.static.Set("Access-Control-Allow-Headers", strings.Join(orDefault(cfg.AllowedHeaders, defaultCORSHeaders), ", "))
	if len(cfg.ExposedHeaders) > 0 {
		p.static.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposedHeaders, ", "))
	}
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = defaultCORSMaxAge
	}
	p.static.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	return p
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin and
// whether it names that origin specifically. An empty value denies it.
func (p corsPolicy) allowOrigin(origin string) (value string, specific bool) {
	switch {
	case origin != "" && (p.origins[origin] || (p.anyOrigin && p.credentials)):
		return origin, true
	case p.anyOrigin:
		return "*", false
	default:
		return "", false
	}
}

// CORS sets CORS headers and answers preflight requests with 204.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allow, specific := policy.allowOrigin(r.Header.Get("Origin")); allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if specific {
					h.Add("Vary", "Origin")
					if policy.credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}
			for k, v := range policy.static {
				h[k] = slices.Clone(v)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
