package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/database"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

// RememberTokenRepository implements repository.RememberTokenRepository using PostgreSQL.
type RememberTokenRepository struct {
	db database.DBTX
}

func NewRememberTokenRepository(db database.DBTX) *RememberTokenRepository {
	return &RememberTokenRepository{db: db}
}

// Create stores the token and fills in its generated ID and created_at.
func (r *RememberTokenRepository) Create(ctx context.Context, t *domain.RememberToken) (err error) {
	query := `
		INSERT INTO remember_tokens (user_id, token_hash, expires_at, user_agent, ip)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	ctx, end := database.TraceQuery(ctx, "CreateRememberToken", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query, t.UserID, t.TokenHash, t.ExpiresAt, t.UserAgent, t.IP).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert remember token: %w", err)
	}
	return nil
}

// GetByHash looks up a token by the SHA-256 hex of its secret.
func (r *RememberTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RememberToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at, last_used_at, user_agent, ip
		FROM remember_tokens
		WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "GetRememberTokenByHash", query)

	var t domain.RememberToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.LastUsedAt,
		&t.UserAgent,
		&t.IP,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			end(nil)
			return nil, apperrors.ErrNotFound
		}
		end(err)
		return nil, fmt.Errorf("scan remember token: %w", err)
	}
	end(nil)
	return &t, nil
}

// Touch records the last time the token restored a session.
func (r *RememberTokenRepository) Touch(ctx context.Context, id string, at time.Time) (err error) {
	query := `UPDATE remember_tokens SET last_used_at = $1 WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "TouchRememberToken", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("touch remember token: %w", err)
	}
	return nil
}

func (r *RememberTokenRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM remember_tokens WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteRememberToken", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete remember token: %w", err)
	}
	return nil
}

func (r *RememberTokenRepository) DeleteByUserID(ctx context.Context, userID string) (n int64, err error) {
	query := `DELETE FROM remember_tokens WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteRememberTokensByUser", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete remember tokens by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *RememberTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (n int64, err error) {
	query := `DELETE FROM remember_tokens WHERE expires_at <= $1`

	ctx, end := database.TraceQuery(ctx, "DeleteExpiredRememberTokens", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired remember tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}
