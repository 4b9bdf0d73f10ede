package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

const testSecret = "test-secret-key-that-is-long-enough-1234"

func newTestCodec(t *testing.T, alg string) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, alg, 0)
	require.NoError(t, err)
	return c
}

func TestNewCodec_Validation(t *testing.T) {
	_, err := NewCodec("", "HS256", 0)
	assert.Error(t, err)

	_, err = NewCodec(testSecret, "RS256", 0)
	assert.Error(t, err)

	c, err := NewCodec(testSecret, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "HS256", c.Algorithm())
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run(alg, func(t *testing.T) {
			c := newTestCodec(t, alg)

			tok, err := c.Encode(map[string]any{ClaimSubject: "ada@example.com", ClaimRole: "admin"}, time.Hour)
			require.NoError(t, err)

			claims, err := c.Decode(tok)
			require.NoError(t, err)
			assert.Equal(t, "ada@example.com", claims.Subject())
			assert.Equal(t, "admin", claims.String(ClaimRole))
			assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt(), 2*time.Second)
			assert.Contains(t, claims, ClaimIssuedAt)
		})
	}
}

func TestCodec_SubjectRequired(t *testing.T) {
	c := newTestCodec(t, "HS256")

	_, err := c.Encode(map[string]any{"role": "user"}, time.Hour)
	assert.Error(t, err)

	_, err = c.Encode(map[string]any{ClaimSubject: ""}, time.Hour)
	assert.Error(t, err)
}

func TestCodec_ExtrasCannotOverrideTimes(t *testing.T) {
	c := newTestCodec(t, "HS256")

	tok, err := c.Encode(map[string]any{
		ClaimSubject:   "ada@example.com",
		ClaimExpiresAt: time.Now().Add(100 * 24 * time.Hour).Unix(),
		ClaimIssuedAt:  int64(1),
	}, time.Minute)
	require.NoError(t, err)

	claims, err := c.Decode(tok)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt(), 2*time.Second)
	iat, err := jwt.MapClaims(claims).GetIssuedAt()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), iat.Time, 2*time.Second)
}

func TestCodec_WrongSecret(t *testing.T) {
	tok, err := newTestCodec(t, "HS256").Encode(map[string]any{ClaimSubject: "a@b.io"}, time.Hour)
	require.NoError(t, err)

	other, err := NewCodec("another-secret-key-that-is-long-enough", "HS256", 0)
	require.NoError(t, err)

	_, err = other.Decode(tok)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
}

func TestCodec_RejectsOtherAlgorithm(t *testing.T) {
	tok, err := newTestCodec(t, "HS512").Encode(map[string]any{ClaimSubject: "a@b.io"}, time.Hour)
	require.NoError(t, err)

	_, err = newTestCodec(t, "HS256").Decode(tok)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestCodec_RejectsNoneAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		ClaimSubject:   "a@b.io",
		ClaimExpiresAt: time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestCodec(t, "HS256").Decode(tok)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestCodec_Expired(t *testing.T) {
	c := newTestCodec(t, "HS256")

	tok, err := c.EncodeUntil(map[string]any{ClaimSubject: "a@b.io"}, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = c.Decode(tok)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestCodec_Leeway(t *testing.T) {
	strict := newTestCodec(t, "HS256")
	lenient, err := NewCodec(testSecret, "HS256", 5*time.Minute)
	require.NoError(t, err)

	tok, err := strict.EncodeUntil(map[string]any{ClaimSubject: "a@b.io"}, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = strict.Decode(tok)
	assert.Error(t, err)

	claims, err := lenient.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, "a@b.io", claims.Subject())
}

func TestCodec_ExpirationRequired(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{ClaimSubject: "a@b.io"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestCodec(t, "HS256").Decode(tok)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestCodec_Malformed(t *testing.T) {
	c := newTestCodec(t, "HS256")
	for _, tok := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 300)} {
		_, err := c.Decode(tok)
		assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "token %q", tok)
	}
}

func TestCodec_TamperedPayload(t *testing.T) {
	c := newTestCodec(t, "HS256")
	tok, err := c.Encode(map[string]any{ClaimSubject: "a@b.io"}, time.Hour)
	require.NoError(t, err)

	other, err := c.Encode(map[string]any{ClaimSubject: "admin@b.io"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = c.Decode(forged)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestClaims_Accessors(t *testing.T) {
	c := Claims{ClaimSubject: "a@b.io", ClaimType: "email_confirm", ClaimID: "j1", "n": 3.0}

	assert.Equal(t, "a@b.io", c.Subject())
	assert.Equal(t, "email_confirm", c.Type())
	assert.Equal(t, "j1", c.ID())
	assert.Equal(t, "", c.String("n"))
	assert.Equal(t, "", c.String("missing"))
	assert.True(t, c.ExpiresAt().IsZero())
}

func TestMergeClaims_FirstWriteWins(t *testing.T) {
	base := map[string]any{ClaimSubject: "a@b.io", ClaimRole: "user"}

	got := MergeClaims(base,
		map[string]any{ClaimRole: "admin", ClaimUserID: "u1"},
		map[string]any{ClaimUserID: "u2", "scope": "games"},
	)

	assert.Equal(t, "user", got[ClaimRole])
	assert.Equal(t, "u1", got[ClaimUserID])
	assert.Equal(t, "games", got["scope"])
	assert.Len(t, base, 2)
}
