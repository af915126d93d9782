package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func newTestThrottle(repo ThrottleRepository) *ScanThrottle {
	return NewScanThrottle(repo, ThrottleConfig{
		MaxFailedPerSubject: 5,
		MaxFailedPerIP:      20,
		Window:              5 * time.Minute,
	}, clock.NewManual(time.Unix(testNow, 0)), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScanThrottle_Check(t *testing.T) {
	tests := []struct {
		name        string
		subjectFail int
		ipFail      int
		expectedErr error
	}{
		{"clean", 0, 0, nil},
		{"subject below limit", 4, 0, nil},
		{"subject at limit", 5, 0, models.ErrScanRateLimited},
		{"reader below limit", 0, 19, nil},
		{"reader at limit", 0, 20, models.ErrScanRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockScanAttemptRepository{
				GetFailedAttemptCountFunc: func(ctx context.Context, subjectID string, since time.Time) (int, error) {
					return tt.subjectFail, nil
				},
				GetFailedAttemptCountByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
					return tt.ipFail, nil
				},
			}

			err := newTestThrottle(repo).Check(context.Background(), testSubject, "203.0.113.7")

			if tt.expectedErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expectedErr)
			}
		})
	}
}

func TestScanThrottle_WindowFromClock(t *testing.T) {
	var subjectSince, ipSince time.Time
	repo := &MockScanAttemptRepository{
		GetFailedAttemptCountFunc: func(ctx context.Context, subjectID string, since time.Time) (int, error) {
			subjectSince = since
			return 0, nil
		},
		GetFailedAttemptCountByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
			ipSince = since
			return 0, nil
		},
	}

	assert.NoError(t, newTestThrottle(repo).Check(context.Background(), testSubject, "203.0.113.7"))

	expected := time.Unix(testNow, 0).Add(-5 * time.Minute)
	assert.Equal(t, expected, subjectSince)
	assert.Equal(t, expected, ipSince)
}

func TestScanThrottle_ReaderCheckSkipped(t *testing.T) {
	repo := &MockScanAttemptRepository{
		GetFailedAttemptCountByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
			t.Fatal("reader count must not be queried")
			return 0, nil
		},
	}

	// Unknown address
	assert.NoError(t, newTestThrottle(repo).Check(context.Background(), testSubject, ""))

	// Disabled
	disabled := NewScanThrottle(repo, ThrottleConfig{MaxFailedPerSubject: 5, Window: time.Minute}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, disabled.Check(context.Background(), testSubject, "203.0.113.7"))
}

func TestScanThrottle_StorageErrorsFailClosed(t *testing.T) {
	repo := &MockScanAttemptRepository{
		GetFailedAttemptCountByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
			return 0, errors.New("timeout")
		},
	}

	err := newTestThrottle(repo).Check(context.Background(), testSubject, "203.0.113.7")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrScanRateLimited)
}
