package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/pkg/clock"
)

// ThrottleRepository defines the failed-scan counts the throttle needs
type ThrottleRepository interface {
	GetFailedAttemptCount(ctx context.Context, subjectID string, since time.Time) (int, error)
	GetFailedAttemptCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

// ThrottleConfig holds failed-scan limits
type ThrottleConfig struct {
	MaxFailedPerSubject int
	MaxFailedPerIP      int           // 0 disables the reader check
	Window              time.Duration // lookback for both counts
}

// ScanThrottle stops code guessing. A subject that keeps failing is locked
// for the window, and so is a reader address that fails across many subjects.
type ScanThrottle struct {
	repo   ThrottleRepository
	config ThrottleConfig
	clock  clock.Clocker
	logger *slog.Logger
}

// NewScanThrottle creates a new ScanThrottle
func NewScanThrottle(repo ThrottleRepository, config ThrottleConfig, clk clock.Clocker, logger *slog.Logger) *ScanThrottle {
	if clk == nil {
		clk = clock.New()
	}
	return &ScanThrottle{
		repo:   repo,
		config: config,
		clock:  clk,
		logger: logger,
	}
}

// Check returns models.ErrScanRateLimited when either limit is reached.
// Storage errors are returned as-is: a throttle that cannot count does not admit scans.
func (t *ScanThrottle) Check(ctx context.Context, subjectID, ipAddress string) error {
	since := t.clock.Now().Add(-t.config.Window)

	failed, err := t.repo.GetFailedAttemptCount(ctx, subjectID, since)
	if err != nil {
		return fmt.Errorf("failed to count subject scans: %w", err)
	}
	if failed >= t.config.MaxFailedPerSubject {
		t.logger.Warn("subject scan throttled",
			slog.String("subject_id", subjectID),
			slog.Int("failed_scans", failed))
		return models.ErrScanRateLimited
	}

	if t.config.MaxFailedPerIP <= 0 || ipAddress == "" {
		return nil
	}

	failed, err = t.repo.GetFailedAttemptCountByIP(ctx, ipAddress, since)
	if err != nil {
		return fmt.Errorf("failed to count reader scans: %w", err)
	}
	if failed >= t.config.MaxFailedPerIP {
		t.logger.Warn("reader scan throttled",
			slog.String("ip_address", ipAddress),
			slog.Int("failed_scans", failed))
		return models.ErrScanRateLimited
	}

	return nil
}
