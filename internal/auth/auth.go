// Package auth verifies the shared secret that internal callers (the
// messaging gateway and the dashboard backend) send with every request.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultHeader carries the secret.
const DefaultHeader = "X-Internal-Secret"

// Verifier checks secrets against a stored SHA-256 digest.
type Verifier struct {
	hash []byte
}

// NewVerifier creates a verifier from a hex digest as produced by
// HashSecret.
func NewVerifier(secretHash string) (*Verifier, error) {
	secretHash = strings.ToLower(strings.TrimSpace(secretHash))
	if secretHash == "" {
		return nil, fmt.Errorf("secret hash is empty")
	}
	raw, err := hex.DecodeString(secretHash)
	if err != nil || len(raw) != sha256.Size {
		return nil, fmt.Errorf("secret hash must be a hex encoded SHA-256 digest")
	}
	return &Verifier{hash: []byte(secretHash)}, nil
}

// Verify reports whether secret matches. The comparison is constant time.
func (v *Verifier) Verify(secret string) bool {
	if secret == "" {
		return false
	}
	got := []byte(HashSecret(secret))
	return subtle.ConstantTimeCompare(got, v.hash) == 1
}

// HashSecret creates the SHA-256 hex digest stored in configuration.
func HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// GenerateSecret returns a random secret with the given prefix.
func GenerateSecret(prefix string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
