package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

// RegisterPprof mounts /debug/pprof/* behind a CIDR allowlist.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(allowedCIDRs, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist only admits requests whose remote address falls inside one of
// the prefixes. Unparseable prefixes are logged and skipped; an empty list
// denies everything.
func IPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			logger.Warn("invalid allowlist CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !allowed(prefixes, host) {
				logger.WarnContext(r.Context(), "access denied by IP allowlist",
					slog.String("ip", host),
					slog.String("path", r.URL.Path),
				)
				writeAuthError(w, apperrors.Forbidden("access restricted by IP allowlist"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowed(prefixes []netip.Prefix, host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
