package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashKey generates a bcrypt hash of an API key, suitable for
// TRANSCRIBE_API_KEY.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(bytes), nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// APIKeyChecker 校验请求携带的 API Key
// The configured secret is either the key itself or its bcrypt hash.
type APIKeyChecker struct {
	secret string
}

func NewAPIKeyChecker(secret string) *APIKeyChecker {
	return &APIKeyChecker{secret: strings.TrimSpace(secret)}
}

// Enabled reports whether a secret is configured. Without one every key
// is rejected.
func (c *APIKeyChecker) Enabled() bool {
	return c.secret != ""
}

// Check compares a presented key with the secret.
func (c *APIKeyChecker) Check(presented string) bool {
	if c.secret == "" || presented == "" {
		return false
	}
	if isBcryptHash(c.secret) {
		return bcrypt.CompareHashAndPassword([]byte(c.secret), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.secret), []byte(presented)) == 1
}
