package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/service"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/httputil"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/validator"
)

// maxFormBytes bounds URL-encoded login bodies.
const maxFormBytes = 64 << 10

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	accounts AccountService
	sessions SessionService
	confirm  ConfirmationService
	cookie   CookieConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(accounts AccountService, sessions SessionService, confirm ConfirmationService, cookie CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		sessions: sessions,
		confirm:  confirm,
		cookie:   cookie,
		logger:   logger,
	}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Remember bool   `json:"remember"`
}

// loginForm is the URL-encoded login body used by OAuth2 password-flow clients.
type loginForm struct {
	Username string `form:"username" validate:"required,max=254"`
	Password string `form:"password" validate:"required,max=72"`
	Remember bool   `form:"remember"`
}

// ResendConfirmationRequest is the JSON request body for resending the
// confirmation mail.
type ResendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// --- Response types ---

// ConfirmResponse is returned by the confirmation link.
type ConfirmResponse struct {
	Message          string `json:"message"`
	Email            string `json:"email"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

const resendMessage = "if the account exists and is not yet confirmed, a confirmation email has been sent"

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, user)
}

// Confirm handles GET /api/v1/auth/confirm?token=
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, r, apperrors.InvalidToken("token is required"), h.logger)
		return
	}

	email, err := h.confirm.VerifyToken(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, already, err := h.confirm.Confirm(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := ConfirmResponse{Message: "Email confirmado com sucesso", Email: user.Email, AlreadyConfirmed: already}
	if already {
		resp.Message = "Email já confirmado"
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

// ResendConfirmation handles POST /api/v1/auth/resend-confirmation. The
// response is the same whether or not the address is registered.
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req ResendConfirmationRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.confirm.Resend(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, MessageResponse{Message: resendMessage})
}

// Login handles POST /api/v1/auth/login. It accepts a JSON body or an
// OAuth2-style form with username and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeLogin(w, r)
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	in.UserAgent = r.UserAgent()
	in.IP = clientIP(r)

	session, err := h.sessions.Login(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if session.RememberToken != "" {
		h.cookie.set(w, session.RememberToken)
	}
	httputil.WriteData(w, http.StatusOK, session)
}

func (h *AuthHandler) decodeLogin(w http.ResponseWriter, r *http.Request) (service.LoginInput, error) {
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			return service.LoginInput{}, err
		}
		form := loginForm{
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
			Remember: parseBool(r.PostForm.Get("remember")),
		}
		if err := validator.Validate(form); err != nil {
			return service.LoginInput{}, err
		}
		return service.LoginInput{Email: form.Username, Password: form.Password, Remember: form.Remember}, nil
	}

	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		return service.LoginInput{}, err
	}
	return service.LoginInput{Email: req.Email, Password: req.Password, Remember: req.Remember}, nil
}

// parseBool accepts the checkbox values browsers and form clients send.
func parseBool(v string) bool {
	if v == "on" || v == "yes" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// Session handles POST /api/v1/auth/session, exchanging the remember cookie
// for a fresh access token.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	raw := rememberCookie(r)
	if raw == "" {
		httputil.WriteError(w, r, apperrors.Unauthenticated("missing remember token"), h.logger)
		return
	}

	session, err := h.sessions.RestoreSession(r.Context(), raw, r.UserAgent(), clientIP(r))
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthenticated) {
			h.cookie.clear(w)
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, session)
}

// Logout handles POST /api/v1/auth/logout. Access tokens stay valid until they
// expire; only the remember token is revoked.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), rememberCookie(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookie.clear(w)
	w.WriteHeader(http.StatusNoContent)
}
