package http

import (
	"log/slog"
	"net/http"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/httputil"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/middleware"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/validator"
)

// UserHandler handles HTTP requests for the authenticated user's profile.
type UserHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(accounts AccountService, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, logger: logger}
}

// --- Request DTOs ---

// UpdateProfileRequest lists the only fields a profile update may carry.
// Unknown keys such as role or is_active are rejected by the decoder.
type UpdateProfileRequest struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=120"`
	Bio  *string `json:"bio" validate:"omitempty,max=1000"`
}

// ChangePasswordRequest is the JSON request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// --- Handlers ---

// GetProfile handles GET /api/v1/users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthenticated("could not validate credentials"), h.logger)
		return
	}

	user, err := h.accounts.GetProfile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// UpdateProfile handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthenticated("could not validate credentials"), h.logger)
		return
	}

	var req UpdateProfileRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, domain.ProfileUpdate{
		Name: req.Name,
		Bio:  req.Bio,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// ChangePassword handles POST /api/v1/users/me/password. Every remember token
// of the user is revoked on success.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthenticated("could not validate credentials"), h.logger)
		return
	}

	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, MessageResponse{Message: "password changed"})
}
