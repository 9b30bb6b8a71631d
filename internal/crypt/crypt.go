// ABOUTME: Reversible encryption for system-recoverable service-token secrets.
// ABOUTME: XChaCha20-Poly1305 sealed box; decryption failures are a distinct sentinel.

package crypt

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt indicates a ciphertext could not be opened: wrong key,
// truncation, or tampering. Callers fall back to reissuing the secret.
var ErrDecrypt = errors.New("decryption failed")

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Box encrypts and decrypts short string secrets with a fixed symmetric key.
type Box struct {
	key []byte
}

// NewBox creates a Box from a raw 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Box{key: k}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
// Output is base64url(nonce || ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("reading nonce entropy: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure mode,
// bad encoding, short input, or authentication failure, returns an
// error wrapping ErrDecrypt so callers can match with errors.Is.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding ciphertext: %v", ErrDecrypt, err)
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("%w: ciphertext shorter than nonce", ErrDecrypt)
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce, body := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: opening ciphertext: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh random key suitable for NewBox.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("reading key entropy: %w", err)
	}
	return key, nil
}

// ParseKey decodes a key from its config representation: standard
// base64 or 64 hex characters.
func ParseKey(encoded string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == KeySize {
		return key, nil
	}
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == KeySize {
		return key, nil
	}
	return nil, fmt.Errorf("key must be base64 or hex encoding of %d bytes", KeySize)
}

// EncodeKey renders a key the way config files carry it.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
