package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewResetSecret generates a high-entropy one-time password-reset secret.
// The plaintext goes into the redemption URL mailed to the user; only the
// hash is ever persisted.
func NewResetSecret() (plaintext, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plaintext = hex.EncodeToString(raw)
	return plaintext, HashResetSecret(plaintext), nil
}

// HashResetSecret maps a plaintext reset secret to its stored form.
func HashResetSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
