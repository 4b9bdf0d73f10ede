package middleware

import (
	"net/http"
)

// NoStore marks every response as non-cacheable. Responses carrying tokens or
// session cookies must never be stored by browsers or shared proxies.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
