package http

import (
	"mime"
	"net/http"
	"strings"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/httputil"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeForm = "application/x-www-form-urlencoded"
)

// ContentTypeJSON rejects bodies that are not application/json. Requests
// without a Content-Type header pass through and are decoded as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return AcceptContentTypes(mediaTypeJSON)(next)
}

// AcceptContentTypes rejects requests whose Content-Type media type is not one
// of allowed with 415 UNSUPPORTED_MEDIA_TYPE. Parameters such as charset are
// ignored.
func AcceptContentTypes(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = struct{}{}
	}
	message := "Content-Type must be " + strings.Join(allowed, " or ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if ct == "" {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(ct)
			if _, ok := set[mediaType]; err != nil || !ok {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: message},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isForm reports whether the request body is URL-encoded form data.
func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == mediaTypeForm
}
