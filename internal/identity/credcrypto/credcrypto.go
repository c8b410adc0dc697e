// Package credcrypto seals messaging channel credentials at rest with
// XChaCha20-Poly1305. Ciphertexts are bound to the owning user id.
package credcrypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealedPrefix = "v1:"
	plainPrefix  = "plain:"
)

// ErrMalformed is returned for values that were not produced by Seal.
var ErrMalformed = errors.New("malformed sealed credential")

// Sealer encrypts and decrypts credentials. A Sealer without a key stores
// values unencrypted behind a marker prefix, which is meant for development.
type Sealer struct {
	key []byte
}

// New returns a Sealer for the 32 byte key, or a pass-through Sealer when
// key is empty.
func New(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return &Sealer{}, nil
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Encrypted reports whether values are actually encrypted.
func (s *Sealer) Encrypted() bool {
	return len(s.key) > 0
}

// Seal encrypts plaintext for the owner identified by aad.
func (s *Sealer) Seal(plaintext, aad string) (string, error) {
	if !s.Encrypted() {
		return plainPrefix + plaintext, nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal with the same aad.
func (s *Sealer) Open(sealed, aad string) (string, error) {
	if rest, ok := strings.CutPrefix(sealed, plainPrefix); ok {
		return rest, nil
	}

	rest, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrMalformed
	}
	if !s.Encrypted() {
		return "", errors.New("credential is encrypted but no key is configured")
	}

	data, err := base64.RawStdEncoding.DecodeString(rest)
	if err != nil {
		return "", ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", ErrMalformed
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
