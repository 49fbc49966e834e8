// Package security holds the credential plumbing shared by the engine: opaque
// refresh secrets, hashing and constant-time comparison, key loading, and the
// access-token provider.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMalformedToken is returned when a presented refresh token does not have the
// expected "<id>.<secret>" shape.
var ErrMalformedToken = errors.New("malformed refresh token")

const secretBytes = 32

// GenerateSecret returns a 256-bit random secret, hex-encoded.
// This is the raw refresh secret handed to the client exactly once.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashSecret returns a SHA-256 hash of the secret, hex-encoded.
// Only the hash is persisted; the raw secret is never stored.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretEqual performs constant-time comparison of the provided secret's hash
// with the stored hash. Returns true only if they match.
func SecretEqual(providedSecret, storedHash string) bool {
	providedHash := HashSecret(providedSecret)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// FormatRefreshToken builds the wire form of a refresh token: "<id>.<secret>".
// The id half lets the store locate the row without indexing on the secret hash alone.
func FormatRefreshToken(id, secret string) string {
	return id + "." + secret
}

// SplitRefreshToken splits a presented refresh token into its id and secret halves.
func SplitRefreshToken(raw string) (id, secret string, err error) {
	i := strings.IndexByte(raw, '.')
	if i <= 0 || i == len(raw)-1 {
		return "", "", ErrMalformedToken
	}
	return raw[:i], raw[i+1:], nil
}
