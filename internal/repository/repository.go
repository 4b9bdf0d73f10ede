package repository

import (
	"context"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
)

// UserRepository defines the persistence operations for accounts. Lookups
// that find nothing return an error wrapping apperrors.ErrNotFound.
type UserRepository interface {
	// Create inserts a new user. A duplicate email returns AlreadyExists.
	Create(ctx context.Context, user *domain.User) error

	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail matches the email exactly, case included.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateProfile persists the user-editable profile fields only.
	UpdateProfile(ctx context.Context, user *domain.User) error

	// Activate marks the user active and reports whether the row changed.
	Activate(ctx context.Context, id string) (bool, error)

	SetPasswordHash(ctx context.Context, id, hash string) error

	// UpsertAdmin creates or overwrites an active admin keyed by email and
	// fills in the stored ID and timestamps.
	UpsertAdmin(ctx context.Context, user *domain.User) error
}

// RememberTokenRepository stores remember-me tokens by the hash of their secret.
type RememberTokenRepository interface {
	Create(ctx context.Context, token *domain.RememberToken) error

	// GetByHash returns ErrNotFound when no row has the hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RememberToken, error)

	Touch(ctx context.Context, id string, at time.Time) error

	// Delete removes one token. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByUserID removes every token of a user and returns the count.
	DeleteByUserID(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes tokens that expired at or before the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConsumedTokenStore records single-use token IDs until they expire.
type ConsumedTokenStore interface {
	// Consume marks id as used for ttl and reports whether this call was the
	// first to do so.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}
