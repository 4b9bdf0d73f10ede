package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/middleware"
)

const credentialsMessage = "could not validate credentials"

// Authenticator resolves bearer access tokens to users.
type Authenticator struct {
	users repository.UserRepository
	codec *auth.Codec
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(users repository.UserRepository, codec *auth.Codec) *Authenticator {
	return &Authenticator{users: users, codec: codec}
}

// Authenticate returns the user a bearer token was issued for. Typed tokens,
// such as confirmation tokens, are not access tokens and are rejected.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (*domain.User, error) {
	if bearer == "" {
		return nil, apperrors.Unauthenticated(credentialsMessage)
	}

	claims, err := a.codec.Decode(bearer)
	if err != nil {
		return nil, apperrors.Unauthenticated(credentialsMessage)
	}
	if claims.Type() != "" {
		return nil, apperrors.Unauthenticated(credentialsMessage)
	}
	email := claims.Subject()
	if email == "" {
		return nil, apperrors.Unauthenticated(credentialsMessage)
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthenticated(credentialsMessage)
		}
		return nil, fmt.Errorf("get user for token: %w", err)
	}
	return user, nil
}

// RequireActive rejects accounts that have not confirmed their email.
func (a *Authenticator) RequireActive(user *domain.User) error {
	if !user.IsActive {
		return apperrors.AccountInactive()
	}
	return nil
}

// ValidateToken adapts Authenticate to middleware.Auth. Lookup failures other
// than authentication errors surface as internal errors.
func (a *Authenticator) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	user, err := a.Authenticate(ctx, token)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Internal(err)
	}
	return &middleware.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Active: user.IsActive,
	}, nil
}
