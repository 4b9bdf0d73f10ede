package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
)

// Registered claim names the codec manages itself.
const (
	ClaimSubject   = "sub"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimID        = "jti"
	ClaimType      = "type"
	ClaimRole      = "role"
	ClaimUserID    = "uid"
)

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Claims is the decoded payload of a token.
type Claims map[string]any

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Claims) Subject() string { return c.String(ClaimSubject) }
func (c Claims) Type() string    { return c.String(ClaimType) }
func (c Claims) ID() string      { return c.String(ClaimID) }

// ExpiresAt returns the exp claim, or the zero time when missing.
func (c Claims) ExpiresAt() time.Time {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Codec signs and verifies HMAC tokens with a single configured algorithm.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	leeway time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. An empty algorithm means HS256.
func NewCodec(secret, algorithm string, leeway time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token codec: empty secret")
	}
	if algorithm == "" {
		algorithm = "HS256"
	}
	method, ok := signingMethods[algorithm]
	if !ok {
		return nil, fmt.Errorf("token codec: unsupported algorithm %q", algorithm)
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Codec{
		secret: []byte(secret),
		method: method,
		leeway: leeway,
		now:    time.Now,
	}, nil
}

// Algorithm returns the configured signing algorithm name.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Encode signs claims with iat=now and exp=now+ttl.
func (c *Codec) Encode(claims map[string]any, ttl time.Duration) (string, error) {
	return c.EncodeUntil(claims, c.now().Add(ttl))
}

// EncodeUntil signs claims with iat=now and the given expiry. claims must carry
// a non-empty sub; any iat or exp it carries is replaced.
func (c *Codec) EncodeUntil(claims map[string]any, expiresAt time.Time) (string, error) {
	sub, _ := claims[ClaimSubject].(string)
	if sub == "" {
		return "", errors.New("token codec: subject is required")
	}

	mc := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		mc[k] = v
	}
	mc[ClaimIssuedAt] = jwt.NewNumericDate(c.now())
	mc[ClaimExpiresAt] = jwt.NewNumericDate(expiresAt)

	signed, err := jwt.NewWithClaims(c.method, mc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of token. Every failure wraps
// ErrInvalidToken. The type claim is not checked here.
func (c *Codec) Decode(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}
	return Claims(mc), nil
}

// MergeClaims returns base plus every key of extra that base does not already
// set. Earlier maps win.
func MergeClaims(base map[string]any, extras ...map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, extra := range extras {
		for k, v := range extra {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}
