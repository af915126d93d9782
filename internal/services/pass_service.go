package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/internal/repositories"
	"github.com/mgclub/smartpass/pkg/clock"
	pkglogger "github.com/mgclub/smartpass/pkg/logger"
)

// PassService enrolls member pass secrets and verifies presented codes
type PassService struct {
	creds    repositories.PassCredentialRepository
	attempts repositories.ScanAttemptRepository
	throttle *ScanThrottle
	replay   repositories.ReplayGuard
	sealer   *auth.SecretSealer
	codes    *auth.CodeGenerator
	email    EmailService
	audit    *pkglogger.AuditLogger
	timing   *auth.TimingDelay
	clock    clock.Clocker
	logger   *slog.Logger
	config   PassConfig
}

// PassConfig holds verification policy
type PassConfig struct {
	ToleranceSteps      int
	MaxFailedScans      int
	MaxFailedScansPerIP int
	FailedScanWindow    time.Duration
	MaxEnvelopeAge      time.Duration
}

// ScanRequest is one presented code plus request metadata for audit
type ScanRequest struct {
	SubjectID string
	Code      string
	IPAddress string
	UserAgent string
}

// NewPassService creates a new pass service
func NewPassService(
	creds repositories.PassCredentialRepository,
	attempts repositories.ScanAttemptRepository,
	replay repositories.ReplayGuard,
	sealer *auth.SecretSealer,
	email EmailService,
	audit *pkglogger.AuditLogger,
	timing *auth.TimingDelay,
	clk clock.Clocker,
	logger *slog.Logger,
	config PassConfig,
) *PassService {
	if clk == nil {
		clk = clock.New()
	}
	return &PassService{
		creds:    creds,
		attempts: attempts,
		throttle: NewScanThrottle(attempts, ThrottleConfig{
			MaxFailedPerSubject: config.MaxFailedScans,
			MaxFailedPerIP:      config.MaxFailedScansPerIP,
			Window:              config.FailedScanWindow,
		}, clk, logger),
		replay:   replay,
		sealer:   sealer,
		codes:    auth.NewCodeGenerator(),
		email:    email,
		audit:    audit,
		timing:   timing,
		clock:    clk,
		logger:   logger,
		config:   config,
	}
}

// replayTTL covers every step a code can still be accepted in
func (s *PassService) replayTTL() time.Duration {
	return time.Duration(2*s.config.ToleranceSteps+2) * auth.StepPeriod * time.Second
}

// ============================================================================
// Enrollment
// ============================================================================

// Enroll registers the member's locally generated secret
func (s *PassService) Enroll(ctx context.Context, subjectID, email, encodedSecret, ipAddress string) (*models.PassCredential, error) {
	secret, err := auth.ParseSecret(encodedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret must be base32", models.ErrBadRequest)
	}
	if secret.Len() < auth.MinEnrolledSecretSize {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", models.ErrBadRequest, auth.MinEnrolledSecretSize)
	}

	ciphertext, nonce, err := s.sealer.Seal(secret)
	if err != nil {
		s.logger.Error("failed to seal pass secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	cred := &models.PassCredential{
		SubjectID:       subjectID,
		DisplayID:       secret.DisplayID(),
		SecretEncrypted: ciphertext,
		SecretNonce:     nonce,
	}

	if err := s.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create pass credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogPassAction("pass_enrolled", subjectID, ipAddress, map[string]string{
		"display_id": cred.DisplayID,
	})

	if email != "" {
		if err := s.email.SendPassEnrolledEmail(ctx, email, cred.DisplayID, cred.CreatedAt); err != nil {
			s.logger.Warn("enrollment notice not sent", slog.String("subject_id", subjectID), slog.Any("error", err))
		}
	}

	return cred, nil
}

// Status reports whether the subject has an enrolled pass
func (s *PassService) Status(ctx context.Context, subjectID string) (*models.PassStatus, error) {
	cred, err := s.creds.GetBySubjectID(ctx, subjectID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.PassStatus{Enrolled: false}, nil
	}
	if err != nil {
		s.logger.Error("failed to load pass credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	enrolledAt := cred.CreatedAt
	return &models.PassStatus{
		Enrolled:   true,
		DisplayID:  cred.DisplayID,
		EnrolledAt: &enrolledAt,
		LastScanAt: cred.LastScanAt,
	}, nil
}

// Revoke deletes the subject's credential. Codes from the old secret stop verifying immediately.
func (s *PassService) Revoke(ctx context.Context, subjectID, email, ipAddress string) error {
	cred, err := s.creds.GetBySubjectID(ctx, subjectID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrPassNotEnrolled
	}
	if err != nil {
		s.logger.Error("failed to load pass credential", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.creds.Delete(ctx, subjectID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrPassNotEnrolled
		}
		s.logger.Error("failed to delete pass credential", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogPassAction("pass_revoked", subjectID, ipAddress, map[string]string{
		"display_id": cred.DisplayID,
	})

	if email != "" {
		if err := s.email.SendPassRevokedEmail(ctx, email, cred.DisplayID, s.clock.Now()); err != nil {
			s.logger.Warn("revocation notice not sent", slog.String("subject_id", subjectID), slog.Any("error", err))
		}
	}

	return nil
}

// ============================================================================
// Verification
// ============================================================================

// VerifyScan checks a presented code against the subject's enrolled secret.
// A rejected scan is a result with Success false, not an error. Errors are
// models.ErrScanRateLimited and models.ErrInternalServer.
func (s *PassService) VerifyScan(ctx context.Context, req ScanRequest) (*models.ScanResult, error) {
	start := time.Now()
	result, err := s.verify(ctx, req)
	s.timing.WaitFrom(ctx, start, err == nil && result.Success)
	return result, err
}

// VerifyEnvelope verifies a scanned envelope. The envelope timestamp must be
// within MaxEnvelopeAge of the verifier clock, then the code is verified as usual.
func (s *PassService) VerifyEnvelope(ctx context.Context, env envelope.Envelope, ipAddress, userAgent string) (*models.ScanResult, error) {
	start := time.Now()
	req := ScanRequest{
		SubjectID: env.SubjectID,
		Code:      env.Code,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	var (
		result *models.ScanResult
		err    error
	)
	age := s.clock.Now().Sub(env.IssuedAt())
	if age > s.config.MaxEnvelopeAge || age < -s.config.MaxEnvelopeAge {
		result = s.reject(ctx, req, models.ScanReasonStale)
	} else {
		result, err = s.verify(ctx, req)
	}

	s.timing.WaitFrom(ctx, start, err == nil && result.Success)
	return result, err
}

func (s *PassService) verify(ctx context.Context, req ScanRequest) (*models.ScanResult, error) {
	now := s.clock.Now()

	if err := s.throttle.Check(ctx, req.SubjectID, req.IPAddress); err != nil {
		if !errors.Is(err, models.ErrScanRateLimited) {
			s.logger.Error("failed to check scan throttle", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.audit.LogScanAttempt(pkglogger.AuditEvent{
			EventType:     "pass_scan",
			SubjectID:     req.SubjectID,
			IPAddress:     req.IPAddress,
			UserAgent:     req.UserAgent,
			FailureReason: models.ScanReasonRateLimited,
		})
		return &models.ScanResult{Reason: models.ScanReasonRateLimited}, models.ErrScanRateLimited
	}

	cred, err := s.creds.GetBySubjectID(ctx, req.SubjectID)
	if errors.Is(err, models.ErrNotFound) {
		return s.reject(ctx, req, models.ScanReasonNotEnrolled), nil
	}
	if err != nil {
		s.logger.Error("failed to load pass credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := s.sealer.Open(cred.SecretEncrypted, cred.SecretNonce)
	if err != nil {
		s.logger.Error("failed to open pass secret",
			slog.String("subject_id", req.SubjectID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	step, ok := s.codes.Match(secret, req.Code, now.Unix(), s.config.ToleranceSteps)
	if !ok {
		return s.reject(ctx, req, models.ScanReasonInvalidCode), nil
	}

	claimed, err := s.replay.Claim(ctx, req.SubjectID, step, s.replayTTL())
	if err != nil {
		s.logger.Error("failed to claim scan step", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !claimed {
		return s.reject(ctx, req, models.ScanReasonReplayed), nil
	}

	if err := s.creds.TouchLastScan(ctx, req.SubjectID, step); err != nil {
		s.logger.Warn("failed to update last scan", slog.Any("error", err))
	}

	s.record(ctx, req, true, "")
	s.audit.LogScanAttempt(pkglogger.AuditEvent{
		EventType: "pass_scan",
		SubjectID: req.SubjectID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"display_id": cred.DisplayID},
	})

	return &models.ScanResult{Success: true, Step: step}, nil
}

// reject records a failed scan and builds its result
func (s *PassService) reject(ctx context.Context, req ScanRequest, reason string) *models.ScanResult {
	s.record(ctx, req, false, reason)
	s.audit.LogScanAttempt(pkglogger.AuditEvent{
		EventType:     "pass_scan",
		SubjectID:     req.SubjectID,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		FailureReason: reason,
	})
	return &models.ScanResult{Success: false, Reason: reason}
}

func (s *PassService) record(ctx context.Context, req ScanRequest, success bool, reason string) {
	attempt := &models.ScanAttempt{
		SubjectID: req.SubjectID,
		IPAddress: req.IPAddress,
		Success:   success,
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record scan attempt", slog.Any("error", err))
	}
}
