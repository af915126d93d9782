package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mgclub/smartpass/internal/database"
	"github.com/mgclub/smartpass/internal/models"
)

// PassCredentialRepository defines pass credential persistence operations
type PassCredentialRepository interface {
	Create(ctx context.Context, cred *models.PassCredential) error
	GetBySubjectID(ctx context.Context, subjectID string) (*models.PassCredential, error)
	Delete(ctx context.Context, subjectID string) error
	TouchLastScan(ctx context.Context, subjectID string, step int64) error
	ClaimStep(ctx context.Context, subjectID string, step int64) (bool, error)
}

// passCredentialRepoImpl implements PassCredentialRepository
type passCredentialRepoImpl struct {
	db *pgxpool.Pool
}

// NewPassCredentialRepository creates a new pass credential repository
func NewPassCredentialRepository(db *pgxpool.Pool) PassCredentialRepository {
	return &passCredentialRepoImpl{db: db}
}

// Create inserts a credential. A second credential for the same subject returns models.ErrConflict.
func (r *passCredentialRepoImpl) Create(ctx context.Context, cred *models.PassCredential) error {
	query := `
		INSERT INTO pass_credentials
			(subject_id, display_id, secret_encrypted, secret_nonce)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		cred.SubjectID,
		cred.DisplayID,
		cred.SecretEncrypted,
		cred.SecretNonce,
	).Scan(&cred.ID, &cred.CreatedAt)

	if err != nil {
		if mapped := database.MapPostgresError(err); errors.Is(mapped, models.ErrConflict) {
			return models.ErrConflict
		}
		return fmt.Errorf("failed to create pass credential: %w", err)
	}

	return nil
}

// GetBySubjectID retrieves the credential enrolled for a subject
func (r *passCredentialRepoImpl) GetBySubjectID(ctx context.Context, subjectID string) (*models.PassCredential, error) {
	cred := &models.PassCredential{}

	query := `
		SELECT id, subject_id, display_id, secret_encrypted, secret_nonce,
		       last_scan_step, last_scan_at, created_at
		FROM pass_credentials
		WHERE subject_id = $1
	`

	err := r.db.QueryRow(ctx, query, subjectID).Scan(
		&cred.ID,
		&cred.SubjectID,
		&cred.DisplayID,
		&cred.SecretEncrypted,
		&cred.SecretNonce,
		&cred.LastScanStep,
		&cred.LastScanAt,
		&cred.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pass credential: %w", err)
	}

	return cred, nil
}

// Delete removes a subject's credential
func (r *passCredentialRepoImpl) Delete(ctx context.Context, subjectID string) error {
	query := `DELETE FROM pass_credentials WHERE subject_id = $1`

	result, err := r.db.Exec(ctx, query, subjectID)
	if err != nil {
		return fmt.Errorf("failed to delete pass credential: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// TouchLastScan records an accepted scan without enforcing step order
func (r *passCredentialRepoImpl) TouchLastScan(ctx context.Context, subjectID string, step int64) error {
	query := `
		UPDATE pass_credentials
		SET last_scan_at = NOW(),
		    last_scan_step = GREATEST(COALESCE(last_scan_step, $2), $2)
		WHERE subject_id = $1
	`

	result, err := r.db.Exec(ctx, query, subjectID, step)
	if err != nil {
		return fmt.Errorf("failed to update last scan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ClaimStep advances last_scan_step to step if no scan at or after step was accepted.
// Returns false when the step was already used.
func (r *passCredentialRepoImpl) ClaimStep(ctx context.Context, subjectID string, step int64) (bool, error) {
	query := `
		UPDATE pass_credentials
		SET last_scan_step = $2, last_scan_at = NOW()
		WHERE subject_id = $1
		  AND (last_scan_step IS NULL OR last_scan_step < $2)
	`

	result, err := r.db.Exec(ctx, query, subjectID, step)
	if err != nil {
		return false, fmt.Errorf("failed to claim scan step: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
