// Package seal encrypts refresh tokens at rest.
//
// A sealed value is base64(iv | tag | ciphertext) under AES-256-GCM with a
// key derived as SHA-256 of the configured secret.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	ivSize  = 12
	tagSize = 16
)

// Errors returned by Sealer.
var (
	ErrEmptySecret = errors.New("encryption secret is empty")
	ErrMalformed   = errors.New("sealed value is malformed")
)

// Sealer seals and unseals strings with one secret.
type Sealer struct {
	aead cipher.AEAD
	rand io.Reader
}

// New returns a Sealer keyed by secret.
func New(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &Sealer{aead: aead, rand: rand.Reader}, nil
}

// Seal encrypts plaintext under a fresh random IV.
func (s *Sealer) Seal(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(s.rand, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := s.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, ivSize+tagSize+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Unseal decrypts a value produced by Seal.
func (s *Sealer) Unseal(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < ivSize+tagSize {
		return "", ErrMalformed
	}

	iv, tag, ct := raw[:ivSize], raw[ivSize:ivSize+tagSize], raw[ivSize+tagSize:]
	joined := make([]byte, 0, len(ct)+tagSize)
	joined = append(joined, ct...)
	joined = append(joined, tag...)

	plain, err := s.aead.Open(nil, iv, joined, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unseal: %w", err)
	}
	return string(plain), nil
}
