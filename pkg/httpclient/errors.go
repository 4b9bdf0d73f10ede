package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

const maxErrorBody = 64 << 10

// downstreamError accepts both the {"error":{code,message}} envelope used by
// this service and the {"errors":[{message,field}]} list returned by mail
// provider APIs.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

func (d downstreamError) codeAndMessage() (string, string, bool) {
	if d.Error != nil {
		return d.Error.Code, d.Error.Message, true
	}
	if len(d.Errors) == 0 {
		return "", "", false
	}
	msgs := make([]string, 0, len(d.Errors))
	for _, e := range d.Errors {
		if e.Field != "" {
			msgs = append(msgs, e.Field+": "+e.Message)
			continue
		}
		msgs = append(msgs, e.Message)
	}
	return "", strings.Join(msgs, "; "), true
}

// ParseResponseError reads a non-2xx response and translates it into an
// error. Structured bodies become an *apperrors.AppError; anything else is
// reported with the status and raw body. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream downstreamError
	if json.Unmarshal(bodyBytes, &downstream) == nil {
		if code, message, ok := downstream.codeAndMessage(); ok {
			return mapDownstreamError(resp.StatusCode, code, message, serviceName)
		}
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusTooManyRequests:
		return &apperrors.AppError{
			Code:    "RATE_LIMITED",
			Message: qualifiedMsg,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		if code == "" {
			code = http.StatusText(status)
		}
		return &apperrors.AppError{Code: code, Message: qualifiedMsg, Status: status}
	}
}

// IsClientError reports whether status is a 4xx code.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
