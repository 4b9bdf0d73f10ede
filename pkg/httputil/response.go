package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/validator"
)

// Response is the JSON envelope written by every handler.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in the data envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError maps err to a status code and error envelope. AppErrors keep their
// own code and message; bare sentinels get a generic one. 401 responses carry
// WWW-Authenticate: Bearer. The request-scoped logger is preferred over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	status, code, message := classify(err)

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

func classify(err error) (int, string, string) {
	appErr, _ := apperrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError && appErr.Code == "INTERNAL_ERROR" {
		return appErr.Status, appErr.Code, "an internal error occurred"
	}
	return appErr.Status, appErr.Code, appErr.Message
}

// WriteValidationError writes a 400 for request decoding or validation failures.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
