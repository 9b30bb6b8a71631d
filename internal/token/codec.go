// ABOUTME: Codec for sigil bearer secrets: generation, digesting, format checks.
// ABOUTME: Secrets are sigil_-prefixed hex strings; only SHA-256 digests are stored.

package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecretPrefix marks every sigil credential so leaked tokens are
	// recognizable in logs and scanners.
	SecretPrefix = "sigil_"

	// secretBytes is the entropy of the random suffix (256 bits).
	secretBytes = 32

	// SecretLength is the fixed length of a well-formed secret:
	// prefix plus hex-encoded suffix.
	SecretLength = len(SecretPrefix) + secretBytes*2

	// displayPrefixLength is how much of a secret is safe to keep for
	// identification in listings.
	displayPrefixLength = 12
)

// GenerateSecret produces a new high-entropy bearer secret.
// The raw value is returned to the caller exactly once at creation;
// everywhere else only its digest exists.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

// Digest returns the lowercase hex SHA-256 of the full secret string.
// Deterministic and one-way; this is the stored lookup key.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the leading characters of a secret for display
// in token listings. Never enough to reconstruct the secret.
func DisplayPrefix(secret string) string {
	if len(secret) < displayPrefixLength {
		return secret
	}
	return secret[:displayPrefixLength]
}

// ValidFormat reports whether a presented string has the shape of a
// sigil secret. Used to short-circuit store lookups for garbage input.
func ValidFormat(secret string) bool {
	if len(secret) != SecretLength {
		return false
	}
	if !strings.HasPrefix(secret, SecretPrefix) {
		return false
	}
	suffix := secret[len(SecretPrefix):]
	if _, err := hex.DecodeString(suffix); err != nil {
		return false
	}
	return suffix == strings.ToLower(suffix)
}
