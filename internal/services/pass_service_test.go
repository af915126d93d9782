package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/pkg/clock"
	pkglogger "github.com/mgclub/smartpass/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 key; at 1234567890 the current code is 005924
const (
	testSecret  = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	testSubject = "member-42"
	testNow     = int64(1234567890)
	codeNow     = "005924"
	codeNext    = "590587"
	codePrev    = "980357"
	codeTooLate = "240500"
)

type passServiceFixture struct {
	svc      *PassService
	creds    *MockPassCredentialRepository
	attempts *MockScanAttemptRepository
	replay   *MockReplayGuard
	email    *MockEmailService
	sealer   *auth.SecretSealer
	clock    *clock.ManualClocker
	logs     *bytes.Buffer
}

func newPassServiceFixture(t *testing.T) *passServiceFixture {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	sealer, err := auth.NewSecretSealer(key)
	require.NoError(t, err)

	f := &passServiceFixture{
		creds:    &MockPassCredentialRepository{},
		attempts: &MockScanAttemptRepository{},
		replay:   &MockReplayGuard{},
		email:    &MockEmailService{},
		sealer:   sealer,
		logs:     &bytes.Buffer{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(f.logs, nil)))

	f.clock = clock.NewManual(time.Unix(testNow, 0))
	f.svc = NewPassService(f.creds, f.attempts, f.replay, sealer, f.email, audit, nil, f.clock, logger, PassConfig{
		ToleranceSteps:   1,
		MaxFailedScans:   5,
		FailedScanWindow: 5 * time.Minute,
		MaxEnvelopeAge:   90 * time.Second,
	})

	return f
}

// enroll makes GetBySubjectID return a credential sealed with testSecret
func (f *passServiceFixture) enroll(t *testing.T) {
	t.Helper()
	secret, err := auth.ParseSecret(testSecret)
	require.NoError(t, err)
	ciphertext, nonce, err := f.sealer.Seal(secret)
	require.NoError(t, err)

	cred := &models.PassCredential{
		ID:              "cred-1",
		SubjectID:       testSubject,
		DisplayID:       secret.DisplayID(),
		SecretEncrypted: ciphertext,
		SecretNonce:     nonce,
		CreatedAt:       time.Unix(testNow-86400, 0),
	}
	f.creds.GetBySubjectIDFunc = func(ctx context.Context, subjectID string) (*models.PassCredential, error) {
		if subjectID == testSubject {
			return cred, nil
		}
		return nil, models.ErrNotFound
	}
}

func scan(code string) ScanRequest {
	return ScanRequest{SubjectID: testSubject, Code: code, IPAddress: "203.0.113.7", UserAgent: "door-scanner/1"}
}

// ============================================================================
// Enroll
// ============================================================================

func TestPassService_Enroll_Success(t *testing.T) {
	f := newPassServiceFixture(t)

	var stored *models.PassCredential
	f.creds.CreateFunc = func(ctx context.Context, cred *models.PassCredential) error {
		cred.ID = "cred-1"
		cred.CreatedAt = time.Unix(testNow, 0)
		stored = cred
		return nil
	}

	cred, err := f.svc.Enroll(context.Background(), testSubject, "member@mgclub.test", testSecret, "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, testSubject, cred.SubjectID)
	assert.Regexp(t, `^MG-[0-9A-F]{4}-X$`, cred.DisplayID)
	assert.NotContains(t, string(stored.SecretEncrypted), testSecret)

	opened, err := f.sealer.Open(stored.SecretEncrypted, stored.SecretNonce)
	require.NoError(t, err)
	assert.Equal(t, testSecret, opened.Base32())

	require.Len(t, f.email.SentEmails, 1)
	assert.Equal(t, "enrolled", f.email.SentEmails[0].Kind)
	assert.Equal(t, cred.DisplayID, f.email.SentEmails[0].DisplayID)

	assert.Contains(t, f.logs.String(), "pass_enrolled")
	assert.NotContains(t, f.logs.String(), testSecret)
}

func TestPassService_Enroll_InvalidSecret(t *testing.T) {
	f := newPassServiceFixture(t)

	tests := []struct {
		name   string
		secret string
	}{
		{"not base32", "not base32!"},
		{"empty", ""},
		{"too short", "JBSWY3DPEHPK3PXP"}, // 10 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Enroll(context.Background(), testSubject, "", tt.secret, "")
			assert.ErrorIs(t, err, models.ErrBadRequest)
		})
	}
}

func TestPassService_Enroll_AlreadyEnrolled(t *testing.T) {
	f := newPassServiceFixture(t)
	f.creds.CreateFunc = func(ctx context.Context, cred *models.PassCredential) error {
		return models.ErrConflict
	}

	_, err := f.svc.Enroll(context.Background(), testSubject, "member@mgclub.test", testSecret, "")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Empty(t, f.email.SentEmails)
}

func TestPassService_Enroll_DatabaseFails(t *testing.T) {
	f := newPassServiceFixture(t)
	f.creds.CreateFunc = func(ctx context.Context, cred *models.PassCredential) error {
		return errors.New("connection refused")
	}

	_, err := f.svc.Enroll(context.Background(), testSubject, "", testSecret, "")
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestPassService_Enroll_EmailFailureIsNotFatal(t *testing.T) {
	f := newPassServiceFixture(t)
	f.email.Err = errors.New("ses throttled")

	cred, err := f.svc.Enroll(context.Background(), testSubject, "member@mgclub.test", testSecret, "")
	require.NoError(t, err)
	assert.NotNil(t, cred)
}

// ============================================================================
// Status / Revoke
// ============================================================================

func TestPassService_Status(t *testing.T) {
	f := newPassServiceFixture(t)

	status, err := f.svc.Status(context.Background(), testSubject)
	require.NoError(t, err)
	assert.False(t, status.Enrolled)

	f.enroll(t)
	status, err = f.svc.Status(context.Background(), testSubject)
	require.NoError(t, err)
	assert.True(t, status.Enrolled)
	assert.Regexp(t, `^MG-[0-9A-F]{4}-X$`, status.DisplayID)
	require.NotNil(t, status.EnrolledAt)
}

func TestPassService_Revoke(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	deleted := ""
	f.creds.DeleteFunc = func(ctx context.Context, subjectID string) error {
		deleted = subjectID
		return nil
	}

	require.NoError(t, f.svc.Revoke(context.Background(), testSubject, "member@mgclub.test", ""))
	assert.Equal(t, testSubject, deleted)
	require.Len(t, f.email.SentEmails, 1)
	assert.Equal(t, "revoked", f.email.SentEmails[0].Kind)
	assert.Contains(t, f.logs.String(), "pass_revoked")
}

func TestPassService_Revoke_NotEnrolled(t *testing.T) {
	f := newPassServiceFixture(t)

	err := f.svc.Revoke(context.Background(), testSubject, "", "")
	assert.ErrorIs(t, err, models.ErrPassNotEnrolled)
}

// ============================================================================
// VerifyScan
// ============================================================================

func TestPassService_VerifyScan_CurrentCode(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	touched := int64(0)
	f.creds.TouchLastScanFunc = func(ctx context.Context, subjectID string, step int64) error {
		touched = step
		return nil
	}

	result, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Reason)
	assert.Equal(t, int64(41152263), result.Step)
	assert.Equal(t, int64(41152263), touched)

	last := f.attempts.LastAttempt()
	require.NotNil(t, last)
	assert.True(t, last.Success)
	assert.Equal(t, "203.0.113.7", last.IPAddress)
}

func TestPassService_VerifyScan_ToleranceWindow(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		success bool
	}{
		{"previous step", codePrev, true},
		{"next step", codeNext, true},
		{"two steps ahead", codeTooLate, false},
		{"garbage", "000000", false},
		{"wrong length", "12345", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPassServiceFixture(t)
			f.enroll(t)

			result, err := f.svc.VerifyScan(context.Background(), scan(tt.code))
			require.NoError(t, err)
			assert.Equal(t, tt.success, result.Success)
			if !tt.success {
				assert.Equal(t, models.ScanReasonInvalidCode, result.Reason)
			}
		})
	}
}

func TestPassService_VerifyScan_FollowsInjectedClock(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	var since time.Time
	f.attempts.GetFailedAttemptCountFunc = func(ctx context.Context, subjectID string, s time.Time) (int, error) {
		since = s
		return 0, nil
	}

	f.clock.Advance(2 * auth.StepPeriod * time.Second)

	stale, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
	require.NoError(t, err)
	assert.False(t, stale.Success)
	assert.Equal(t, models.ScanReasonInvalidCode, stale.Reason)
	assert.Equal(t, time.Unix(testNow, 0).Add(60*time.Second-5*time.Minute), since)

	current, err := f.svc.VerifyScan(context.Background(), scan(codeTooLate))
	require.NoError(t, err)
	assert.True(t, current.Success)
	assert.Equal(t, int64(41152265), current.Step)
}

func TestPassService_VerifyScan_Replay(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	first, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, models.ScanReasonReplayed, second.Reason)

	last := f.attempts.LastAttempt()
	require.NotNil(t, last.FailureReason)
	assert.Equal(t, models.ScanReasonReplayed, *last.FailureReason)
}

func TestPassService_VerifyScan_ReplayTTLCoversWindow(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	var ttl time.Duration
	f.replay.ClaimFunc = func(ctx context.Context, subjectID string, step int64, d time.Duration) (bool, error) {
		ttl = d
		return true, nil
	}

	_, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ttl, 3*auth.StepPeriod*time.Second)
}

func TestPassService_VerifyScan_NotEnrolled(t *testing.T) {
	f := newPassServiceFixture(t)

	result, err := f.svc.VerifyScan(context.Background(), ScanRequest{SubjectID: "stranger", Code: codeNow})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ScanReasonNotEnrolled, result.Reason)
}

func TestPassService_VerifyScan_RateLimited(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	var since time.Time
	f.attempts.GetFailedAttemptCountFunc = func(ctx context.Context, subjectID string, s time.Time) (int, error) {
		since = s
		return 5, nil
	}

	result, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
	assert.ErrorIs(t, err, models.ErrScanRateLimited)
	assert.False(t, result.Success)
	assert.Equal(t, time.Unix(testNow, 0).Add(-5*time.Minute), since)

	// A throttled scan never reaches the replay guard
	ok, _ := f.replay.Claim(context.Background(), testSubject, 41152263, time.Minute)
	assert.True(t, ok)
}

func TestPassService_VerifyScan_Errors(t *testing.T) {
	t.Run("attempt count fails", func(t *testing.T) {
		f := newPassServiceFixture(t)
		f.attempts.GetFailedAttemptCountFunc = func(context.Context, string, time.Time) (int, error) {
			return 0, errors.New("timeout")
		}
		_, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
		assert.ErrorIs(t, err, models.ErrInternalServer)
	})

	t.Run("credential lookup fails", func(t *testing.T) {
		f := newPassServiceFixture(t)
		f.creds.GetBySubjectIDFunc = func(context.Context, string) (*models.PassCredential, error) {
			return nil, errors.New("timeout")
		}
		_, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
		assert.ErrorIs(t, err, models.ErrInternalServer)
	})

	t.Run("replay guard fails", func(t *testing.T) {
		f := newPassServiceFixture(t)
		f.enroll(t)
		f.replay.ClaimFunc = func(context.Context, string, int64, time.Duration) (bool, error) {
			return false, errors.New("redis down")
		}
		_, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
		assert.ErrorIs(t, err, models.ErrInternalServer)
	})

	t.Run("sealed secret unreadable", func(t *testing.T) {
		f := newPassServiceFixture(t)
		f.creds.GetBySubjectIDFunc = func(context.Context, string) (*models.PassCredential, error) {
			return &models.PassCredential{SubjectID: testSubject, SecretEncrypted: []byte("x"), SecretNonce: make([]byte, 12)}, nil
		}
		_, err := f.svc.VerifyScan(context.Background(), scan(codeNow))
		assert.ErrorIs(t, err, models.ErrInternalServer)
	})
}

func TestPassService_VerifyScan_RejectionIsDelayed(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)
	f.svc.timing = auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 50})

	start := time.Now()
	result, err := f.svc.VerifyScan(context.Background(), scan("000000"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

// ============================================================================
// VerifyEnvelope
// ============================================================================

func TestPassService_VerifyEnvelope(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	env := envelope.Build(codeNow, testSubject, testNow*1000-2000)
	result, err := f.svc.VerifyEnvelope(context.Background(), env, "203.0.113.7", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestPassService_VerifyEnvelope_Stale(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
	}{
		{"too old", (testNow - 91) * 1000},
		{"from the future", (testNow + 91) * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPassServiceFixture(t)
			f.enroll(t)

			result, err := f.svc.VerifyEnvelope(context.Background(), envelope.Build(codeNow, testSubject, tt.ts), "", "")
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, models.ScanReasonStale, result.Reason)
		})
	}
}

func TestPassService_VerifyEnvelope_FreshTimestampDoesNotProveCode(t *testing.T) {
	f := newPassServiceFixture(t)
	f.enroll(t)

	result, err := f.svc.VerifyEnvelope(context.Background(), envelope.Build("111111", testSubject, testNow*1000), "", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ScanReasonInvalidCode, result.Reason)
}
