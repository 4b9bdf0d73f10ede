package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/mail"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) Activate(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *mockUserRepository) UpsertAdmin(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// --- Mock Remember Token Repository ---

type mockRememberRepository struct {
	mock.Mock
}

func (m *mockRememberRepository) Create(ctx context.Context, token *domain.RememberToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockRememberRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RememberToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RememberToken), args.Error(1)
}

func (m *mockRememberRepository) Touch(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockRememberRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRememberRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRememberRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- In-memory repositories for end-to-end flows ---

type memUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{users: make(map[string]*domain.User)}
}

func (r *memUserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memUserRepository) UpdateProfile(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}
	stored.Name, stored.Bio = u.Name, u.Bio
	return nil
}

func (r *memUserRepository) Activate(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.IsActive {
		return false, nil
	}
	u.IsActive = true
	return true, nil
}

func (r *memUserRepository) SetPasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (r *memUserRepository) UpsertAdmin(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Role, u.IsActive = domain.RoleAdmin, true
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

type memRememberRepository struct {
	mu     sync.Mutex
	nextID int
	tokens map[string]*domain.RememberToken
}

func newMemRememberRepository() *memRememberRepository {
	return &memRememberRepository{tokens: make(map[string]*domain.RememberToken)}
}

func (r *memRememberRepository) Create(_ context.Context, t *domain.RememberToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = "token-" + strconv.Itoa(r.nextID)
	t.CreatedAt = time.Now().UTC()
	cp := *t
	r.tokens[t.ID] = &cp
	return nil
}

func (r *memRememberRepository) GetByHash(_ context.Context, hash string) (*domain.RememberToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memRememberRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.LastUsedAt = &at
	}
	return nil
}

func (r *memRememberRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *memRememberRepository) DeleteByUserID(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *memRememberRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if !t.ExpiresAt.After(cutoff) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *memRememberRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

type memConsumedStore struct {
	mu   sync.Mutex
	seen map[string]time.Duration
}

func (s *memConsumedStore) Consume(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]time.Duration)
	}
	if _, ok := s.seen[id]; ok {
		return false, nil
	}
	s.seen[id] = ttl
	return true, nil
}

// --- Collaborator fakes ---

type fakeMailer struct {
	mu     sync.Mutex
	sent   []mail.Message
	reject bool
}

func (f *fakeMailer) Dispatch(_ context.Context, msg mail.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeMailer) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind)
	return p.err
}

func (p *recordingPublisher) PublishUserRegistered(context.Context, *domain.User) error {
	return p.record("registered")
}

func (p *recordingPublisher) PublishUserConfirmed(context.Context, *domain.User) error {
	return p.record("confirmed")
}

func (p *recordingPublisher) PublishUserUpdated(context.Context, *domain.User) error {
	return p.record("updated")
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// --- Test Helpers ---

const testSecret = "test-secret-key-for-testing-0123456789"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *auth.Codec {
	t.Helper()
	codec, err := auth.NewCodec(testSecret, "HS256", 0)
	require.NoError(t, err)
	return codec
}

func newTestHasher() *auth.Hasher {
	return auth.NewHasher(4)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := newTestHasher().Hash(password)
	require.NoError(t, err)
	return h
}

func testConfirmationConfig() ConfirmationConfig {
	return ConfirmationConfig{
		TTL:        24 * time.Hour,
		ConfirmURL: "http://localhost:8000/api/v1/auth/confirm",
	}
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		AccessTTL:   60 * time.Minute,
		RememberTTL: 30 * 24 * time.Hour,
	}
}

func activeUser(t *testing.T, password string) *domain.User {
	t.Helper()
	return &domain.User{
		ID:           "11111111-1111-1111-1111-111111111111",
		Email:        "ana@example.com",
		Name:         "Ana",
		PasswordHash: mustHash(t, password),
		Role:         domain.RoleUser,
		IsActive:     true,
	}
}
