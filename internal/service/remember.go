package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

const maxUserAgentLength = 255

// RememberTokenStore issues and resolves remember-me tokens. Only the hash of
// a raw secret is ever stored or compared.
type RememberTokenStore struct {
	repo   repository.RememberTokenRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewRememberTokenStore creates a store over repo.
func NewRememberTokenStore(repo repository.RememberTokenRepository, logger *slog.Logger) *RememberTokenStore {
	return &RememberTokenStore{repo: repo, logger: logger, now: time.Now}
}

// Create persists a token for raw. The raw secret is not kept.
func (s *RememberTokenStore) Create(ctx context.Context, userID, raw string, expiresAt time.Time, userAgent, ip string) (*domain.RememberToken, error) {
	if raw == "" {
		return nil, apperrors.InvalidInput("remember secret is required")
	}
	if len(userAgent) > maxUserAgentLength {
		userAgent = userAgent[:maxUserAgentLength]
	}

	token := &domain.RememberToken{
		UserID:    userID,
		TokenHash: auth.HashSecret(raw),
		ExpiresAt: expiresAt.UTC(),
		UserAgent: userAgent,
		IP:        ip,
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("create remember token: %w", err)
	}
	return token, nil
}

// FindByRaw returns the live token for raw, or nil when there is none. An
// expired row is deleted on the way out.
func (s *RememberTokenStore) FindByRaw(ctx context.Context, raw string) (*domain.RememberToken, error) {
	if raw == "" {
		return nil, nil
	}

	hash := auth.HashSecret(raw)
	token, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find remember token: %w", err)
	}
	if !auth.HashesEqual(token.TokenHash, hash) {
		return nil, nil
	}

	if token.Expired(s.now()) {
		if err := s.repo.Delete(ctx, token.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete expired remember token",
				slog.String("token_id", token.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}
	return token, nil
}

// Touch records that token was just used.
func (s *RememberTokenStore) Touch(ctx context.Context, token *domain.RememberToken) error {
	at := s.now().UTC()
	if err := s.repo.Touch(ctx, token.ID, at); err != nil {
		return fmt.Errorf("touch remember token: %w", err)
	}
	token.LastUsedAt = &at
	return nil
}

// Revoke deletes one token.
func (s *RememberTokenStore) Revoke(ctx context.Context, token *domain.RememberToken) error {
	if err := s.repo.Delete(ctx, token.ID); err != nil {
		return fmt.Errorf("revoke remember token: %w", err)
	}
	return nil
}

// RevokeAll deletes every token of userID and returns how many were removed.
func (s *RememberTokenStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke remember tokens: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes tokens that are already expired.
func (s *RememberTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge remember tokens: %w", err)
	}
	return n, nil
}

// RunPurge calls PurgeExpired every interval until ctx is done.
func (s *RememberTokenStore) RunPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "remember token purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "purged expired remember tokens", slog.Int64("count", n))
			}
		}
	}
}
