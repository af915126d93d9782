package secretstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/models"
)

const installationIDKey = "installation-id"

// Store owns the installation's pass secret. Construct one per process and share it.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *slog.Logger
	rand    io.Reader
}

// NewStore creates a Store on top of backend
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		rand:    rand.Reader,
	}
}

// InstallationID returns the identifier the secret entry is keyed by,
// creating and persisting it on first use
func (s *Store) InstallationID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.installationID()
}

func (s *Store) installationID() (string, error) {
	id, err := s.backend.Get(installationIDKey)
	if err == nil {
		if _, perr := uuid.Parse(id); perr != nil {
			return "", fmt.Errorf("%w: stored installation id is unreadable", models.ErrStorageUnavailable)
		}
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: failed to read installation id: %w", models.ErrStorageUnavailable, err)
	}

	id = uuid.New().String()
	if err := s.backend.Set(installationIDKey, id); err != nil {
		return "", fmt.Errorf("%w: failed to persist installation id: %w", models.ErrStorageUnavailable, err)
	}
	return id, nil
}

// GetOrCreateSecret returns the installation's secret, generating and persisting
// one on first use. Repeated calls return the same secret.
func (s *Store) GetOrCreateSecret(ctx context.Context) (auth.Secret, error) {
	if err := ctx.Err(); err != nil {
		return auth.Secret{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.installationID()
	if err != nil {
		return auth.Secret{}, err
	}

	encoded, err := s.backend.Get(id)
	if err == nil {
		secret, perr := auth.ParseSecret(encoded)
		if perr != nil {
			return auth.Secret{}, fmt.Errorf("%w: stored pass secret is unreadable: %w", models.ErrStorageUnavailable, perr)
		}
		return secret, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return auth.Secret{}, fmt.Errorf("%w: failed to read pass secret: %w", models.ErrStorageUnavailable, err)
	}

	secret, err := auth.NewSecret(s.rand)
	if err != nil {
		return auth.Secret{}, err
	}
	if err := s.backend.Set(id, secret.Base32()); err != nil {
		return auth.Secret{}, fmt.Errorf("%w: failed to persist pass secret: %w", models.ErrStorageUnavailable, err)
	}

	s.logger.Info("pass secret created",
		slog.String("installation_id", id),
		slog.String("display_id", secret.DisplayID()))

	return secret, nil
}

// Clear removes the secret and the installation id. The next
// GetOrCreateSecret starts a new installation.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.backend.Get(installationIDKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read installation id: %w", models.ErrStorageUnavailable, err)
	}

	if err := s.backend.Delete(id); err != nil {
		return fmt.Errorf("%w: failed to delete pass secret: %w", models.ErrStorageUnavailable, err)
	}
	if err := s.backend.Delete(installationIDKey); err != nil {
		return fmt.Errorf("%w: failed to delete installation id: %w", models.ErrStorageUnavailable, err)
	}

	s.logger.Info("pass secret cleared", slog.String("installation_id", id))
	return nil
}
