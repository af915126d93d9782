package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mgclub/smartpass/internal/models"
)

// MockPassCredentialRepository implements repositories.PassCredentialRepository for testing
type MockPassCredentialRepository struct {
	CreateFunc         func(ctx context.Context, cred *models.PassCredential) error
	GetBySubjectIDFunc func(ctx context.Context, subjectID string) (*models.PassCredential, error)
	DeleteFunc         func(ctx context.Context, subjectID string) error
	TouchLastScanFunc  func(ctx context.Context, subjectID string, step int64) error
	ClaimStepFunc      func(ctx context.Context, subjectID string, step int64) (bool, error)
}

func (m *MockPassCredentialRepository) Create(ctx context.Context, cred *models.PassCredential) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, cred)
	}
	cred.ID = "cred-test"
	cred.CreatedAt = time.Now()
	return nil
}

func (m *MockPassCredentialRepository) GetBySubjectID(ctx context.Context, subjectID string) (*models.PassCredential, error) {
	if m.GetBySubjectIDFunc != nil {
		return m.GetBySubjectIDFunc(ctx, subjectID)
	}
	return nil, models.ErrNotFound
}

func (m *MockPassCredentialRepository) Delete(ctx context.Context, subjectID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, subjectID)
	}
	return nil
}

func (m *MockPassCredentialRepository) TouchLastScan(ctx context.Context, subjectID string, step int64) error {
	if m.TouchLastScanFunc != nil {
		return m.TouchLastScanFunc(ctx, subjectID, step)
	}
	return nil
}

func (m *MockPassCredentialRepository) ClaimStep(ctx context.Context, subjectID string, step int64) (bool, error) {
	if m.ClaimStepFunc != nil {
		return m.ClaimStepFunc(ctx, subjectID, step)
	}
	return true, nil
}

// MockScanAttemptRepository implements repositories.ScanAttemptRepository for testing.
// Recorded attempts are kept in Attempts.
type MockScanAttemptRepository struct {
	mu       sync.Mutex
	Attempts []models.ScanAttempt

	GetFailedAttemptCountFunc     func(ctx context.Context, subjectID string, since time.Time) (int, error)
	GetFailedAttemptCountByIPFunc func(ctx context.Context, ipAddress string, since time.Time) (int, error)
	DeleteOlderThanFunc           func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockScanAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.ScanAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, *attempt)
	return nil
}

func (m *MockScanAttemptRepository) GetFailedAttemptCount(ctx context.Context, subjectID string, since time.Time) (int, error) {
	if m.GetFailedAttemptCountFunc != nil {
		return m.GetFailedAttemptCountFunc(ctx, subjectID, since)
	}
	return 0, nil
}

func (m *MockScanAttemptRepository) GetFailedAttemptCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	if m.GetFailedAttemptCountByIPFunc != nil {
		return m.GetFailedAttemptCountByIPFunc(ctx, ipAddress, since)
	}
	return 0, nil
}

func (m *MockScanAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// LastAttempt returns the most recently recorded attempt
func (m *MockScanAttemptRepository) LastAttempt() *models.ScanAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Attempts) == 0 {
		return nil
	}
	a := m.Attempts[len(m.Attempts)-1]
	return &a
}

// MockReplayGuard is an in-memory replay guard
type MockReplayGuard struct {
	mu      sync.Mutex
	claimed map[string]bool

	ClaimFunc func(ctx context.Context, subjectID string, step int64, ttl time.Duration) (bool, error)
}

func (m *MockReplayGuard) Claim(ctx context.Context, subjectID string, step int64, ttl time.Duration) (bool, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, subjectID, step, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	key := fmt.Sprintf("%s:%d", subjectID, step)
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

// SentEmail represents a captured email notice
type SentEmail struct {
	Kind      string
	To        string
	DisplayID string
}

// MockEmailService captures sent notices for test assertions
type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []SentEmail
	Err        error
}

func (m *MockEmailService) SendPassEnrolledEmail(ctx context.Context, email, displayID string, enrolledAt time.Time) error {
	return m.capture("enrolled", email, displayID)
}

func (m *MockEmailService) SendPassRevokedEmail(ctx context.Context, email, displayID string, revokedAt time.Time) error {
	return m.capture("revoked", email, displayID)
}

func (m *MockEmailService) capture(kind, email, displayID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{Kind: kind, To: email, DisplayID: displayID})
	return m.Err
}
