// Package apikey issues and verifies fightclaw's bearer credentials.
// Agents never hold a signed, expiring token the way the arena's users do;
// instead they hold an opaque secret whose salted hash is what persistence
// ever sees. The manager here mirrors the shape of the JWT manager it
// replaces (a struct wrapping one secret, Generate/Verify-like methods)
// without any signing algorithm, since there is nothing to sign.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrInvalidKey = errors.New("invalid key")
)

const (
	// KeyPrefix marks every bearer key minted by fightclaw.
	KeyPrefix = "fc_sk_"
	// secretBytes is the amount of randomness backing each minted secret.
	secretBytes = 24
	// prefixLen is how much of the raw key is stored unhashed for display.
	prefixLen = 12
)

// Manager hashes and verifies bearer keys and claim codes with a
// process-wide pepper, per the auth rules.
type Manager struct {
	pepper string
}

// NewManager builds a Manager. pepper must be non-empty.
func NewManager(pepper string) (*Manager, error) {
	if pepper == "" {
		return nil, errors.New("apikey: pepper must not be empty")
	}
	return &Manager{pepper: pepper}, nil
}

// Generate mints a new random secret with the fightclaw prefix, along with
// the short prefix stored unhashed for display/audit and its hash for
// persistence.
func (m *Manager) Generate() (secret, displayPrefix, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("apikey: generate: %w", err)
	}
	secret = KeyPrefix + hex.EncodeToString(buf)
	displayPrefix = secret[:prefixLen]
	hash = m.Hash(secret)
	return secret, displayPrefix, hash, nil
}

// Hash returns the salted SHA-256 hex digest of secret.
func (m *Manager) Hash(secret string) string {
	sum := sha256.Sum256([]byte(m.pepper + secret))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether secret hashes to storedHash, in constant time.
func (m *Manager) Verify(secret, storedHash string) bool {
	got := m.Hash(secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
