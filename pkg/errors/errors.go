package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for repository and service errors. Every AppError built by this
// package wraps exactly one of them.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")

	// Login failures for an unknown email and a wrong password both wrap
	// ErrAuthFailed and render identically.
	ErrAuthFailed      = errors.New("authentication failed")
	ErrAccountInactive = errors.New("account inactive")
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Public message used for every 500.
const internalMessage = "an internal error occurred"

const (
	authFailedMessage      = "incorrect email or password"
	accountInactiveMessage = "account is not active, check your email for the confirmation link"
)

// kind binds a sentinel to its wire code, status and the message shown when
// the sentinel reaches the HTTP layer without an AppError around it.
type kind struct {
	sentinel error
	code     string
	status   int
	message  string
	// exposeCause renders err.Error() instead of message.
	exposeCause bool
}

// kinds is checked in order by FromError.
var kinds = []kind{
	{sentinel: ErrAuthFailed, code: "AUTH_FAILED", status: http.StatusUnauthorized, message: authFailedMessage},
	{sentinel: ErrAccountInactive, code: "ACCOUNT_INACTIVE", status: http.StatusForbidden, message: accountInactiveMessage},
	{sentinel: ErrInvalidToken, code: "INVALID_TOKEN", status: http.StatusBadRequest, message: "invalid or expired token"},
	{sentinel: ErrUnauthenticated, code: "UNAUTHENTICATED", status: http.StatusUnauthorized, message: "could not validate credentials"},
	{sentinel: ErrNotFound, code: "NOT_FOUND", status: http.StatusNotFound, message: "resource not found"},
	{sentinel: ErrAlreadyExists, code: "ALREADY_EXISTS", status: http.StatusConflict, message: "resource already exists"},
	{sentinel: ErrConflict, code: "CONFLICT", status: http.StatusConflict, message: "conflict"},
	{sentinel: ErrInvalidInput, code: "INVALID_INPUT", status: http.StatusBadRequest, exposeCause: true},
	{sentinel: ErrUnauthorized, code: "UNAUTHORIZED", status: http.StatusUnauthorized, message: "unauthorized"},
	{sentinel: ErrForbidden, code: "FORBIDDEN", status: http.StatusForbidden, message: "forbidden"},
	{sentinel: ErrServiceUnavail, code: "SERVICE_UNAVAILABLE", status: http.StatusServiceUnavailable, message: "service unavailable"},
}

func kindOf(sentinel error) kind {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k
		}
	}
	return kind{sentinel: ErrInternal, code: "INTERNAL_ERROR", status: http.StatusInternalServerError, message: internalMessage}
}

// AppError carries the code, status and client-safe message of a failure.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound creates a 404 naming the missing resource.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

// AlreadyExists creates a 409 for a unique field collision.
func AlreadyExists(resource, field, value string) *AppError {
	return newError(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

func InvalidInput(message string) *AppError {
	return newError(ErrInvalidInput, message)
}

func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return newError(ErrForbidden, message)
}

func Conflict(message string) *AppError {
	return newError(ErrConflict, message)
}

func ServiceUnavailable(message string) *AppError {
	return newError(ErrServiceUnavail, message)
}

// Internal wraps err in a 500 whose message never reveals it.
func Internal(err error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: internalMessage, Status: http.StatusInternalServerError, Err: err}
}

// AuthFailed is the 401 for bad credentials. Its message is fixed so an
// unknown email cannot be told apart from a wrong password.
func AuthFailed() *AppError {
	return newError(ErrAuthFailed, authFailedMessage)
}

// AccountInactive is the 403 for accounts whose email is not confirmed.
func AccountInactive() *AppError {
	return newError(ErrAccountInactive, accountInactiveMessage)
}

// InvalidToken is the 400 for malformed, expired or mistyped tokens.
func InvalidToken(message string) *AppError {
	return newError(ErrInvalidToken, message)
}

// Unauthenticated is the 401 for protected calls without a usable credential.
func Unauthenticated(message string) *AppError {
	return newError(ErrUnauthenticated, message)
}

// Wrap adds context to err, keeping it matchable with errors.Is.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// FromError resolves err to an AppError. An AppError anywhere in the chain is
// returned as is; a bare sentinel gets its default code and message. ok is
// false when err matches nothing, in which case a generic 500 is returned.
func FromError(err error) (appErr *AppError, ok bool) {
	if errors.As(err, &appErr) {
		return appErr, true
	}
	for _, k := range kinds {
		if !errors.Is(err, k.sentinel) {
			continue
		}
		msg := k.message
		if k.exposeCause {
			msg = err.Error()
		}
		return &AppError{Code: k.code, Message: msg, Status: k.status, Err: err}, true
	}
	return Internal(err), false
}

// HTTPStatus returns the HTTP status code for err, 500 when unknown.
func HTTPStatus(err error) int {
	appErr, _ := FromError(err)
	return appErr.Status
}
