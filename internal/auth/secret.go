package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// rememberSecretBytes is the entropy of a remember-me secret.
const rememberSecretBytes = 48

// NewRememberSecret returns a random URL-safe secret without padding.
func NewRememberSecret() (string, error) {
	b := make([]byte, rememberSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate remember secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret returns the lowercase hex SHA-256 of raw.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashesEqual compares two hex digests in constant time.
func HashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
