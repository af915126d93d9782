package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mgclub/smartpass/internal/models"
)

// ScanAttemptRepository defines scan attempt persistence operations
type ScanAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.ScanAttempt) error
	GetFailedAttemptCount(ctx context.Context, subjectID string, since time.Time) (int, error)
	GetFailedAttemptCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// scanAttemptRepoImpl implements ScanAttemptRepository
type scanAttemptRepoImpl struct {
	db *pgxpool.Pool
}

// NewScanAttemptRepository creates a new scan attempt repository
func NewScanAttemptRepository(db *pgxpool.Pool) ScanAttemptRepository {
	return &scanAttemptRepoImpl{db: db}
}

// RecordAttempt records a verification attempt
func (r *scanAttemptRepoImpl) RecordAttempt(ctx context.Context, attempt *models.ScanAttempt) error {
	query := `
		INSERT INTO scan_attempts
			(subject_id, ip_address, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, attempted_at
	`

	err := r.db.QueryRow(ctx, query,
		attempt.SubjectID,
		attempt.IPAddress,
		attempt.Success,
		attempt.FailureReason,
	).Scan(&attempt.ID, &attempt.AttemptedAt)

	if err != nil {
		return fmt.Errorf("failed to record scan attempt: %w", err)
	}

	return nil
}

// GetFailedAttemptCount returns the number of failed scans for a subject since a point in time
func (r *scanAttemptRepoImpl) GetFailedAttemptCount(ctx context.Context, subjectID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM scan_attempts
		WHERE subject_id = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, subjectID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed scan count: %w", err)
	}

	return count, nil
}

// GetFailedAttemptCountByIP returns the number of failed scans from one reader address since a point in time
func (r *scanAttemptRepoImpl) GetFailedAttemptCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM scan_attempts
		WHERE ip_address = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed scan count by ip: %w", err)
	}

	return count, nil
}

// DeleteOlderThan prunes attempts recorded before cutoff
func (r *scanAttemptRepoImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM scan_attempts WHERE attempted_at < $1`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scan attempts: %w", err)
	}

	return result.RowsAffected(), nil
}
