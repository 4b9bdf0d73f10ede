package domain

import (
	"strings"
	"time"
)

// User is a registered account. Email is the subject of every token issued
// for the user and is unique, compared case-sensitively.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Email
}

// RememberToken is a persisted long-lived credential. Only the SHA-256 hex of
// the raw secret is stored; the raw value lives in the client's cookie.
type RememberToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	IP         string     `json:"ip,omitempty"`
}

// Expired reports whether the token is no longer usable at now.
func (t *RememberToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Session is the result of a successful login or session restore.
type Session struct {
	AccessToken       string     `json:"access_token"`
	TokenType         string     `json:"token_type"`
	ExpiresAt         time.Time  `json:"expires_at"`
	ExpiresIn         int64      `json:"expires_in"`
	RememberToken     string     `json:"-"`
	RememberExpiresAt *time.Time `json:"remember_expires_at,omitempty"`
	User              *User      `json:"user"`
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// ProfileUpdate lists the fields a user may change on their own profile.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name *string
	Bio  *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Bio == nil
}

// Apply copies the set fields onto u.
func (p ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
}
