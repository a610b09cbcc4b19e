// Package crypto generates API keys and compares secrets.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

// APIKeyLen is the number of random bytes behind an API key.
const APIKeyLen = 32

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewAPIKey returns a fresh URL-safe API key (43 characters, no padding).
func NewAPIKey() (string, error) {
	b, err := RandBytes(APIKeyLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
