package smartpass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/background"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/pkg/clock"
)

// PassStatus describes what the presenter knows about the current pass
type PassStatus string

const (
	StatusPresenting  PassStatus = "presenting"
	StatusVerified    PassStatus = "verified"
	StatusRejected    PassStatus = "rejected"
	StatusUnconfirmed PassStatus = "unconfirmed"
)

// Pass is one issued credential ready to be shown
type Pass struct {
	Envelope         envelope.Envelope
	Payload          []byte // encoded envelope, the QR contents
	DisplayID        string
	SecondsRemaining int
	Status           PassStatus
	Reason           string // verifier reason when rejected
}

// SecretSource yields the device's pass secret
type SecretSource interface {
	GetOrCreateSecret(ctx context.Context) (auth.Secret, error)
}

// Session issues passes for one member on one device
type Session struct {
	subjectID     string
	secrets       SecretSource
	verifier      Verifier
	authenticator Authenticator
	codes         *auth.CodeGenerator
	clock         clock.Clocker
	logger        *slog.Logger
}

// NewSession creates a session. A nil clock uses system time.
func NewSession(
	subjectID string,
	secrets SecretSource,
	verifier Verifier,
	authenticator Authenticator,
	clk clock.Clocker,
	logger *slog.Logger,
) *Session {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		subjectID:     subjectID,
		secrets:       secrets,
		verifier:      verifier,
		authenticator: authenticator,
		codes:         auth.NewCodeGenerator(),
		clock:         clk,
		logger:        logger,
	}
}

// Enroll registers this device's secret with the verifier
func (s *Session) Enroll(ctx context.Context) (*Enrollment, error) {
	secret, err := s.secrets.GetOrCreateSecret(ctx)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.verifier.Enroll(ctx, secret)
	if err != nil {
		return nil, err
	}

	s.logger.Info("pass enrolled",
		slog.String("subject_id", s.subjectID),
		slog.String("display_id", enrollment.DisplayID))
	return enrollment, nil
}

// Unlock runs the presence check, issues a pass for the current time and
// submits its code. An unreachable verifier yields StatusUnconfirmed rather
// than an error; only a positive answer yields StatusVerified.
func (s *Session) Unlock(ctx context.Context) (*Pass, error) {
	if err := authenticate(ctx, s.authenticator, "Unlock your MGCLUB pass"); err != nil {
		return nil, err
	}

	secret, err := s.secrets.GetOrCreateSecret(ctx)
	if err != nil {
		return nil, err
	}

	pass, err := s.issue(secret, s.clock.Now())
	if err != nil {
		return nil, err
	}

	outcome, err := s.verifier.Scan(ctx, s.subjectID, pass.Envelope.Code)
	switch {
	case IsUnreachable(err):
		s.logger.Warn("pass not confirmed, verifier unreachable",
			slog.String("subject_id", s.subjectID),
			slog.Any("error", err))
		pass.Status = StatusUnconfirmed
		return pass, nil
	case err != nil:
		return nil, err
	case outcome.Success:
		pass.Status = StatusVerified
	default:
		pass.Status = StatusRejected
		pass.Reason = outcome.Reason
	}

	s.logger.Info("pass unlocked",
		slog.String("subject_id", s.subjectID),
		slog.String("status", string(pass.Status)))
	return pass, nil
}

// Present keeps a fresh pass on screen. onUpdate receives a pass every
// second; its envelope changes only when the code rolls over. When no code
// can be produced onUpdate gets a nil pass and the error, and the scheduler
// retries on the next tick. The returned stop function halts the scheduler
// and is safe to call more than once.
func (s *Session) Present(ctx context.Context, onUpdate func(*Pass, error)) (func(), error) {
	secret, err := s.secrets.GetOrCreateSecret(ctx)
	if err != nil {
		return nil, err
	}

	generate := func(now time.Time) (string, error) {
		return s.codes.Generate(secret, now.Unix())
	}

	onTick := func(t background.Tick) {
		if t.Err != nil {
			onUpdate(nil, fmt.Errorf("failed to generate pass code: %w", t.Err))
			return
		}
		pass, err := s.passFromTick(secret, t)
		if err != nil {
			s.logger.Error("failed to build pass", slog.Any("error", err))
			onUpdate(nil, err)
			return
		}
		onUpdate(pass, nil)
	}

	scheduler := background.NewRegenerationScheduler(generate, onTick, s.clock, s.logger)
	if err := scheduler.Start(ctx); err != nil {
		return nil, err
	}
	return scheduler.Stop, nil
}

func (s *Session) passFromTick(secret auth.Secret, t background.Tick) (*Pass, error) {
	return s.build(secret, t.Code, t.GeneratedAt, t.SecondsRemaining)
}

// issue builds a pass for the code current at now
func (s *Session) issue(secret auth.Secret, now time.Time) (*Pass, error) {
	code, err := s.codes.Generate(secret, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to generate pass code: %w", err)
	}
	return s.build(secret, code, now, auth.SecondsRemaining(now.Unix()))
}

func (s *Session) build(secret auth.Secret, code string, issuedAt time.Time, remaining int) (*Pass, error) {
	env := envelope.Build(code, s.subjectID, issuedAt.UnixMilli())
	payload, err := envelope.Marshal(env)
	if err != nil {
		return nil, err
	}

	return &Pass{
		Envelope:         env,
		Payload:          payload,
		DisplayID:        secret.DisplayID(),
		SecondsRemaining: remaining,
		Status:           StatusPresenting,
	}, nil
}

// CannotIssue reports whether err means no pass can be issued on this device
func CannotIssue(err error) bool {
	return errors.Is(err, models.ErrStorageUnavailable)
}
