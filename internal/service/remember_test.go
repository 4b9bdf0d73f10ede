package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

func TestRememberTokenStore_CreateStoresHashOnly(t *testing.T) {
	repo := new(mockRememberRepository)
	store := NewRememberTokenStore(repo, newTestLogger())

	expires := time.Now().Add(time.Hour)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(tok *domain.RememberToken) bool {
		return tok.UserID == "user-1" &&
			tok.TokenHash == auth.HashSecret("raw-secret") &&
			tok.UserAgent == "ua" && tok.IP == "10.0.0.1"
	})).Return(nil)

	tok, err := store.Create(context.Background(), "user-1", "raw-secret", expires, "ua", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, "raw-secret", tok.TokenHash)
	repo.AssertExpectations(t)
}

func TestRememberTokenStore_CreateRejectsEmptySecret(t *testing.T) {
	store := NewRememberTokenStore(new(mockRememberRepository), newTestLogger())

	_, err := store.Create(context.Background(), "user-1", "", time.Now().Add(time.Hour), "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestRememberTokenStore_CreateTruncatesUserAgent(t *testing.T) {
	repo := newMemRememberRepository()
	store := NewRememberTokenStore(repo, newTestLogger())

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	tok, err := store.Create(context.Background(), "user-1", "raw", time.Now().Add(time.Hour), string(long), "")
	require.NoError(t, err)
	assert.Len(t, tok.UserAgent, maxUserAgentLength)
}

func TestRememberTokenStore_FindByRaw(t *testing.T) {
	ctx := context.Background()
	repo := newMemRememberRepository()
	store := NewRememberTokenStore(repo, newTestLogger())

	created, err := store.Create(ctx, "user-1", "raw-secret", time.Now().Add(time.Hour), "", "")
	require.NoError(t, err)

	found, err := store.FindByRaw(ctx, "raw-secret")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	other, err := store.FindByRaw(ctx, "some-other-secret")
	require.NoError(t, err)
	assert.Nil(t, other)

	empty, err := store.FindByRaw(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRememberTokenStore_FindByRawDeletesExpired(t *testing.T) {
	ctx := context.Background()
	repo := newMemRememberRepository()
	store := NewRememberTokenStore(repo, newTestLogger())

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Create(ctx, "user-1", "raw", now, "", "")
	require.NoError(t, err)
	require.Equal(t, 1, repo.count())

	found, err := store.FindByRaw(ctx, "raw")
	require.NoError(t, err)
	assert.Nil(t, found, "expires_at == now counts as expired")
	assert.Equal(t, 0, repo.count())
}

func TestRememberTokenStore_FindByRawRepositoryError(t *testing.T) {
	repo := new(mockRememberRepository)
	store := NewRememberTokenStore(repo, newTestLogger())

	repo.On("GetByHash", mock.Anything, auth.HashSecret("raw")).Return(nil, errors.New("connection reset"))

	_, err := store.FindByRaw(context.Background(), "raw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRememberTokenStore_FindByRawHashMismatch(t *testing.T) {
	repo := new(mockRememberRepository)
	store := NewRememberTokenStore(repo, newTestLogger())

	repo.On("GetByHash", mock.Anything, auth.HashSecret("raw")).Return(&domain.RememberToken{
		ID:        "tok-1",
		TokenHash: auth.HashSecret("different"),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	found, err := store.FindByRaw(context.Background(), "raw")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRememberTokenStore_TouchRevokeAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	repo := newMemRememberRepository()
	store := NewRememberTokenStore(repo, newTestLogger())

	a, err := store.Create(ctx, "user-1", "a", time.Now().Add(time.Hour), "", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-1", "b", time.Now().Add(time.Hour), "", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-2", "c", time.Now().Add(time.Hour), "", "")
	require.NoError(t, err)

	require.NoError(t, store.Touch(ctx, a))
	require.NotNil(t, a.LastUsedAt)

	require.NoError(t, store.Revoke(ctx, a))
	found, err := store.FindByRaw(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, found)

	n, err := store.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err = store.FindByRaw(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = store.FindByRaw(ctx, "c")
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestRememberTokenStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	repo := newMemRememberRepository()
	store := NewRememberTokenStore(repo, newTestLogger())

	_, err := store.Create(ctx, "user-1", "old", time.Now().Add(-time.Minute), "", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-1", "new", time.Now().Add(time.Hour), "", "")
	require.NoError(t, err)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, repo.count())
}

func TestRememberTokenStore_RunPurgeStopsOnCancel(t *testing.T) {
	repo := newMemRememberRepository()
	store := NewRememberTokenStore(repo, newTestLogger())

	_, err := store.Create(context.Background(), "user-1", "old", time.Now().Add(-time.Minute), "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunPurge(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.count() == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPurge did not return after cancel")
	}
}
