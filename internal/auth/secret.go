package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SecretSize is the length of generated pass secrets (160 bits)
const SecretSize = 20

// MinEnrolledSecretSize is the shortest secret the verifier accepts at enrollment
const MinEnrolledSecretSize = 16

const redacted = "[REDACTED]"

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidSecret is returned when a stored or presented secret cannot be decoded
var ErrInvalidSecret = errors.New("invalid pass secret")

// Secret is the key material codes are derived from.
// It never renders its value through fmt, slog or encoding/json.
type Secret struct {
	key []byte
}

// NewSecret generates a fresh random secret of SecretSize bytes
func NewSecret(r io.Reader) (Secret, error) {
	if r == nil {
		r = rand.Reader
	}
	key := make([]byte, SecretSize)
	if _, err := io.ReadFull(r, key); err != nil {
		return Secret{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	return Secret{key: key}, nil
}

// ParseSecret decodes a base32 secret, tolerating padding, whitespace and lower case
func ParseSecret(encoded string) (Secret, error) {
	s := strings.ToUpper(strings.TrimSpace(encoded))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return Secret{}, ErrInvalidSecret
	}
	key, err := b32.DecodeString(s)
	if err != nil {
		return Secret{}, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return Secret{key: key}, nil
}

// Base32 returns the storage encoding: unpadded upper-case base32.
// Only persistence and enrollment code should call it.
func (s Secret) Base32() string {
	return b32.EncodeToString(s.key)
}

// Len returns the secret length in bytes
func (s Secret) Len() int {
	return len(s.key)
}

// IsZero reports whether the secret holds no key material
func (s Secret) IsZero() bool {
	return len(s.key) == 0
}

// Equal compares two secrets
func (s Secret) Equal(other Secret) bool {
	return s.Base32() == other.Base32()
}

// DisplayID returns a short identifier that is safe to show on screen, e.g. "MG-3FA2-X".
// It is derived from a digest of the secret, so it reveals none of the secret's characters.
func (s Secret) DisplayID() string {
	h := sha256.New()
	h.Write([]byte("smartpass/display-id/v1"))
	h.Write(s.key)
	sum := h.Sum(nil)
	return "MG-" + strings.ToUpper(hex.EncodeToString(sum[:2])) + "-X"
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "auth.Secret{" + redacted + "}"
}

// LogValue implements slog.LogValuer
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON keeps the secret out of any JSON document
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
