package secretstore

import "errors"

// ErrNotFound is returned by a Backend when no entry exists for a key
var ErrNotFound = errors.New("secret store entry not found")

// Backend persists string values by key.
// Get must return ErrNotFound for a missing key; Delete of a missing key is not an error.
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
