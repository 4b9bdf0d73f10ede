package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/event"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/mail"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

// TokenTypeEmailConfirm marks tokens that may only confirm an email address.
const TokenTypeEmailConfirm = "email_confirm"

// ConfirmationConfig configures ConfirmationService.
type ConfirmationConfig struct {
	TTL        time.Duration
	ConfirmURL string
	// SingleUse rejects a second use of the same token. It needs a
	// ConsumedTokenStore.
	SingleUse bool
}

// ConfirmationService issues and redeems email confirmation tokens.
type ConfirmationService struct {
	users    repository.UserRepository
	codec    *auth.Codec
	consumed repository.ConsumedTokenStore
	mailer   MailDispatcher
	events   event.Publisher
	cfg      ConfirmationConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewConfirmationService creates the confirmation flow. consumed may be nil
// when single-use enforcement is off.
func NewConfirmationService(
	users repository.UserRepository,
	codec *auth.Codec,
	consumed repository.ConsumedTokenStore,
	mailer MailDispatcher,
	events event.Publisher,
	cfg ConfirmationConfig,
	logger *slog.Logger,
) *ConfirmationService {
	return &ConfirmationService{
		users:    users,
		codec:    codec,
		consumed: consumed,
		mailer:   mailer,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateToken mints a confirmation token for email.
func (s *ConfirmationService) CreateToken(email string) (string, error) {
	token, err := s.codec.Encode(map[string]any{
		auth.ClaimSubject: email,
		auth.ClaimType:    TokenTypeEmailConfirm,
		auth.ClaimID:      uuid.NewString(),
	}, s.cfg.TTL)
	if err != nil {
		return "", fmt.Errorf("create confirmation token: %w", err)
	}
	return token, nil
}

// VerifyToken returns the email a confirmation token was issued for. Access
// tokens and anything else without the confirmation type are rejected.
func (s *ConfirmationService) VerifyToken(ctx context.Context, token string) (string, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return "", apperrors.InvalidToken("invalid or expired token")
	}
	if claims.Type() != TokenTypeEmailConfirm {
		return "", apperrors.InvalidToken("invalid token type")
	}
	email := claims.Subject()
	if email == "" {
		return "", apperrors.InvalidToken("token has no subject")
	}

	if s.cfg.SingleUse && s.consumed != nil {
		jti := claims.ID()
		if jti == "" {
			return "", apperrors.InvalidToken("token has no id")
		}
		first, err := s.consumed.Consume(ctx, jti, claims.ExpiresAt().Sub(s.now()))
		if err != nil {
			return "", fmt.Errorf("consume confirmation token: %w", err)
		}
		if !first {
			return "", apperrors.InvalidToken("confirmation link already used")
		}
	}
	return email, nil
}

// Confirm activates the account for email. The bool is true when the account
// was already active.
func (s *ConfirmationService) Confirm(ctx context.Context, email string) (*domain.User, bool, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, apperrors.NotFound("user", "for this token")
		}
		return nil, false, fmt.Errorf("get user for confirmation: %w", err)
	}
	if user.IsActive {
		return user, true, nil
	}

	changed, err := s.users.Activate(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("activate user: %w", err)
	}
	user.IsActive = true
	user.UpdatedAt = s.now().UTC()
	if !changed {
		return user, true, nil
	}

	if err := s.events.PublishUserConfirmed(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.confirmed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "email confirmed", slog.String("user_id", user.ID))
	return user, false, nil
}

// Resend mails a fresh confirmation link to an inactive account. Unknown and
// already active addresses get no mail and no error.
func (s *ConfirmationService) Resend(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.DebugContext(ctx, "resend requested for unknown email",
				slog.String("email", logger.MaskEmail(email)),
			)
			return nil
		}
		return fmt.Errorf("get user for resend: %w", err)
	}
	if user.IsActive {
		return nil
	}

	s.SendConfirmation(ctx, user)
	return nil
}

// SendConfirmation queues the confirmation mail for user and reports whether
// it was accepted. Failures are logged only.
func (s *ConfirmationService) SendConfirmation(ctx context.Context, user *domain.User) bool {
	token, err := s.CreateToken(user.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create confirmation token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return false
	}

	link, err := mail.ConfirmationLink(s.cfg.ConfirmURL, token)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build confirmation link", slog.String("error", err.Error()))
		return false
	}

	msg, err := mail.ConfirmationMessage(user.Email, user.Name, link)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to render confirmation mail", slog.String("error", err.Error()))
		return false
	}

	if !s.mailer.Dispatch(ctx, msg) {
		s.logger.WarnContext(ctx, "confirmation mail not queued", slog.String("user_id", user.ID))
		return false
	}
	return true
}
