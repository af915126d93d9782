package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealKeyInfo = "smartpass/secret-seal/v1"

// SecretSealer encrypts pass secrets at rest with AES-256-GCM
type SecretSealer struct {
	key []byte // 32-byte AES-256 key
}

// NewSecretSealer derives the AES key from the configured master key with HKDF-SHA256.
// masterKey must be at least 32 bytes.
func NewSecretSealer(masterKey []byte) (*SecretSealer, error) {
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("seal key must be at least 32 bytes, got %d", len(masterKey))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive seal key: %w", err)
	}

	return &SecretSealer{key: key}, nil
}

// Seal encrypts a secret.
// Returns: (ciphertext, nonce, error)
func (s *SecretSealer) Seal(secret Secret) ([]byte, []byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret.Base32()), nil)
	return ciphertext, nonce, nil
}

// Open decrypts a sealed secret
func (s *SecretSealer) Open(ciphertext, nonce []byte) (Secret, error) {
	gcm, err := s.gcm()
	if err != nil {
		return Secret{}, err
	}

	if len(nonce) != gcm.NonceSize() {
		return Secret{}, fmt.Errorf("failed to decrypt secret: nonce must be %d bytes", gcm.NonceSize())
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Secret{}, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return ParseSecret(string(plaintext))
}

func (s *SecretSealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
