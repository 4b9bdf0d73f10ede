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

// usersEmailKey is the unique constraint on users.email.
const usersEmailKey = "users_email_key"

const userColumns = `id, email, name, bio, avatar_url, password_hash, role, is_active, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.Bio,
		u.AvatarURL,
		u.PasswordHash,
		u.Role,
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, usersEmailKey) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, "GetUserByEmail", query, email)
}

// UpdateProfile writes name and bio. Other columns are never touched here.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *domain.User) (err error) {
	u.UpdatedAt = time.Now().UTC()

	query := `UPDATE users SET name = $1, bio = $2, updated_at = $3 WHERE id = $4`

	ctx, end := database.TraceQuery(ctx, "UpdateUserProfile", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, u.Name, u.Bio, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// Activate sets is_active. It returns false when the user was already active.
func (r *UserRepository) Activate(ctx context.Context, id string) (changed bool, err error) {
	query := `UPDATE users SET is_active = true, updated_at = $1 WHERE id = $2 AND is_active = false`

	ctx, end := database.TraceQuery(ctx, "ActivateUser", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("activate user: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// SetPasswordHash replaces the stored hash.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string) (err error) {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "SetUserPasswordHash", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// UpsertAdmin inserts or overwrites the admin row for u.Email.
func (r *UserRepository) UpsertAdmin(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, '', '', $4, $5, true, $6, $6)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    password_hash = EXCLUDED.password_hash,
		    role = EXCLUDED.role,
		    is_active = true,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertAdmin", query)
	defer func() { end(err) }()

	now := time.Now().UTC()
	u.Role = domain.RoleAdmin
	u.IsActive = true
	err = r.db.QueryRow(ctx, query, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, now).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, operation, query string, args ...any) (*domain.User, error) {
	ctx, end := database.TraceQuery(ctx, operation, query)

	var u domain.User
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Bio,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			end(nil)
			return nil, apperrors.ErrNotFound
		}
		end(err)
		return nil, fmt.Errorf("scan user: %w", err)
	}
	end(nil)
	return &u, nil
}
