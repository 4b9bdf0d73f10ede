package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/event"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

const (
	maxNameLength     = 120
	maxBioLength      = 1000
	maxPasswordLength = 72
)

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// AccountService implements registration and self-service profile changes.
type AccountService struct {
	users    repository.UserRepository
	hasher   *auth.Hasher
	remember *RememberTokenStore
	confirm  *ConfirmationService
	events   event.Publisher
	logger   *slog.Logger
}

// NewAccountService creates an account service.
func NewAccountService(
	users repository.UserRepository,
	hasher *auth.Hasher,
	remember *RememberTokenStore,
	confirm *ConfirmationService,
	events event.Publisher,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		hasher:   hasher,
		remember: remember,
		confirm:  confirm,
		events:   events,
		logger:   logger,
	}
}

// Register creates an inactive account and mails its confirmation link.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if in.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.confirm.SendConfirmation(ctx, user)

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(user.Email)),
	)
	return user, nil
}

// GetProfile returns the user with the given ID.
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return user, nil
}

// UpdateProfile applies the allow-listed fields of upd. Nil fields are left
// as they are.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.User, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("name must not be empty")
		}
		if len(name) > maxNameLength {
			return nil, apperrors.InvalidInput(fmt.Sprintf("name must be at most %d characters", maxNameLength))
		}
		upd.Name = &name
	}
	if upd.Bio != nil && len(*upd.Bio) > maxBioLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("bio must be at most %d characters", maxBioLength))
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Empty() {
		return user, nil
	}

	upd.Apply(user)
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if err := s.events.PublishUserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one and
// revokes every remember token of the user.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}

	revoked, err := s.remember.RevokeAll(ctx, user.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", user.ID),
		slog.Int64("remember_tokens_revoked", revoked),
	)
	return nil
}

// EnsureAdmin creates or overwrites an active admin account keyed by email.
// The fresh hash is verified before anything is written.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, name, password string) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("name must be 1 to %d characters", maxNameLength))
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if !s.hasher.Verify(password, hash) {
		return nil, errors.New("password hash failed verification")
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.UpsertAdmin(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "admin account ensured",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(user.Email)),
	)
	return user, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}
