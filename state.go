package alipayauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// GenerateState generates a cryptographically random state string for use
// as a CSRF token in the authorization redirect. It returns a 43-character
// base64url-encoded (no padding) string derived from 32 random bytes.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidateState performs a timing-safe comparison of the state a host
// issued with the state echoed back on the callback. It returns an
// ErrKindRejected error if either value is empty or they differ.
func ValidateState(expected, actual string) error {
	if expected == "" || actual == "" {
		return newAuthError(ErrKindRejected, "", "state: expected and actual must not be empty", nil)
	}
	expectedHash := sha256.Sum256([]byte(expected))
	actualHash := sha256.Sum256([]byte(actual))
	if subtle.ConstantTimeCompare(expectedHash[:], actualHash[:]) != 1 {
		return newAuthError(ErrKindRejected, "", "state mismatch", nil)
	}
	return nil
}
