package secretstore

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service the pass entries are filed under
const DefaultKeyringService = "mgclub-smartpass"

// KeyringBackend stores entries in the OS keychain (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager)
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates a backend filing entries under service
func NewKeyringBackend(service string) *KeyringBackend {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringBackend{service: service}
}

func (k *KeyringBackend) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (k *KeyringBackend) Set(key, value string) error {
	return keyring.Set(k.service, key, value)
}

func (k *KeyringBackend) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
