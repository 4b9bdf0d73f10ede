package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

// SessionConfig configures SessionService.
type SessionConfig struct {
	AccessTTL   time.Duration
	RememberTTL time.Duration
	// ResendOnInactiveLogin mails a new confirmation link when an inactive
	// account logs in with valid credentials.
	ResendOnInactiveLogin bool
}

// LoginInput holds the parameters for a login.
type LoginInput struct {
	Email     string
	Password  string
	Remember  bool
	UserAgent string
	IP        string
	// TTL overrides the configured access token lifetime when positive.
	TTL         time.Duration
	ExtraClaims map[string]any
}

// SessionService verifies credentials and issues access tokens and
// remember-me secrets.
type SessionService struct {
	users    repository.UserRepository
	hasher   *auth.Hasher
	codec    *auth.Codec
	remember *RememberTokenStore
	confirm  *ConfirmationService
	cfg      SessionConfig
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewSessionService creates a session service. confirm may be nil when
// confirmation mail is not resent on login.
func NewSessionService(
	users repository.UserRepository,
	hasher *auth.Hasher,
	codec *auth.Codec,
	remember *RememberTokenStore,
	confirm *ConfirmationService,
	cfg SessionConfig,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		users:    users,
		hasher:   hasher,
		codec:    codec,
		remember: remember,
		confirm:  confirm,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// burnVerify runs a bcrypt comparison against a throwaway hash so an unknown
// email costs about as much as a wrong password.
func (s *SessionService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	_ = s.hasher.Verify(password, s.dummyHash)
}

// Login authenticates a user by email and password. Unknown emails and wrong
// passwords return the same AuthFailed error.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*domain.Session, error) {
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.burnVerify(in.Password)
			loginAttempts.WithLabelValues(loginFailed).Inc()
			s.logger.InfoContext(ctx, "login failed", slog.String("email", logger.MaskEmail(in.Email)))
			return nil, apperrors.AuthFailed()
		}
		loginAttempts.WithLabelValues(loginError).Inc()
		return nil, fmt.Errorf("get user for login: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		loginAttempts.WithLabelValues(loginFailed).Inc()
		s.logger.InfoContext(ctx, "login failed", slog.String("email", logger.MaskEmail(in.Email)))
		return nil, apperrors.AuthFailed()
	}

	if !user.IsActive {
		if s.cfg.ResendOnInactiveLogin && s.confirm != nil {
			s.confirm.SendConfirmation(ctx, user)
		}
		loginAttempts.WithLabelValues(loginInactive).Inc()
		return nil, apperrors.AccountInactive()
	}

	session, err := s.issue(user, in.TTL, in.ExtraClaims)
	if err != nil {
		loginAttempts.WithLabelValues(loginError).Inc()
		return nil, err
	}

	if in.Remember {
		raw, err := auth.NewRememberSecret()
		if err != nil {
			loginAttempts.WithLabelValues(loginError).Inc()
			return nil, err
		}
		expiresAt := s.now().Add(s.cfg.RememberTTL).UTC()
		if _, err := s.remember.Create(ctx, user.ID, raw, expiresAt, in.UserAgent, in.IP); err != nil {
			loginAttempts.WithLabelValues(loginError).Inc()
			return nil, err
		}
		session.RememberToken = raw
		session.RememberExpiresAt = &expiresAt
	}

	loginAttempts.WithLabelValues(loginSuccess).Inc()
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember", in.Remember),
	)
	return session, nil
}

// RestoreSession mints a new access token from a remember-me secret.
func (s *SessionService) RestoreSession(ctx context.Context, raw, userAgent, ip string) (*domain.Session, error) {
	token, err := s.remember.FindByRaw(ctx, raw)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperrors.Unauthenticated("remember token is invalid or expired")
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthenticated("remember token is invalid or expired")
		}
		return nil, fmt.Errorf("get user for session: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.AccountInactive()
	}

	if err := s.remember.Touch(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "failed to touch remember token",
			slog.String("token_id", token.ID),
			slog.String("error", err.Error()),
		)
	}
	if token.UserAgent != "" && token.UserAgent != userAgent {
		s.logger.InfoContext(ctx, "remember token used from a different client",
			slog.String("user_id", user.ID),
			slog.String("ip", ip),
		)
	}

	session, err := s.issue(user, 0, nil)
	if err != nil {
		return nil, err
	}
	expiresAt := token.ExpiresAt
	session.RememberExpiresAt = &expiresAt
	return session, nil
}

// Logout revokes the remember token behind raw, if any. Access tokens stay
// valid until they expire.
func (s *SessionService) Logout(ctx context.Context, raw string) error {
	token, err := s.remember.FindByRaw(ctx, raw)
	if err != nil {
		return err
	}
	if token == nil {
		return nil
	}
	return s.remember.Revoke(ctx, token)
}

func (s *SessionService) issue(user *domain.User, ttl time.Duration, extra map[string]any) (*domain.Session, error) {
	if ttl <= 0 {
		ttl = s.cfg.AccessTTL
	}
	expiresAt := s.now().Add(ttl).UTC()

	claims := auth.MergeClaims(
		map[string]any{auth.ClaimSubject: user.Email},
		map[string]any{auth.ClaimRole: user.Role, auth.ClaimUserID: user.ID},
		extra,
	)
	token, err := s.codec.EncodeUntil(claims, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &domain.Session{
		AccessToken: token,
		TokenType:   domain.TokenTypeBearer,
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(ttl / time.Second),
		User:        user,
	}, nil
}
