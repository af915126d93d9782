package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/mgclub/smartpass/pkg/logger"
)

// EmailService sends pass lifecycle notices to members
type EmailService interface {
	SendPassEnrolledEmail(ctx context.Context, email, displayID string, enrolledAt time.Time) error
	SendPassRevokedEmail(ctx context.Context, email, displayID string, revokedAt time.Time) error
}

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   sesAPI
	fromAddress string
	issuer      string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, issuer string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		issuer:      issuer,
		logger:      logger,
	}, nil
}

// SendPassEnrolledEmail tells the member a pass was enrolled on a device
func (s *AWSSESEmailService) SendPassEnrolledEmail(ctx context.Context, email, displayID string, enrolledAt time.Time) error {
	subject := fmt.Sprintf("Your %s Smart Pass is active", s.issuer)
	text := fmt.Sprintf(`Your %s Smart Pass is active

Pass %s was enrolled on %s.

If you did not set up this pass, revoke it from the app and contact the front desk.

This is an automated message. Please do not reply to this email.
`, s.issuer, displayID, enrolledAt.UTC().Format(time.RFC1123))

	return s.send(ctx, email, subject, text, "pass_enrolled")
}

// SendPassRevokedEmail tells the member their pass no longer opens the door
func (s *AWSSESEmailService) SendPassRevokedEmail(ctx context.Context, email, displayID string, revokedAt time.Time) error {
	subject := fmt.Sprintf("Your %s Smart Pass was revoked", s.issuer)
	text := fmt.Sprintf(`Your %s Smart Pass was revoked

Pass %s was revoked on %s and will no longer be accepted at check-in.

If you did not do this, contact the front desk.

This is an automated message. Please do not reply to this email.
`, s.issuer, displayID, revokedAt.UTC().Format(time.RFC1123))

	return s.send(ctx, email, subject, text, "pass_revoked")
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, text, kind string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(text),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// NoopEmailService logs instead of sending, for deployments without SES
type NoopEmailService struct {
	logger *slog.Logger
}

// NewNoopEmailService creates an email service that only logs
func NewNoopEmailService(logger *slog.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger}
}

func (s *NoopEmailService) SendPassEnrolledEmail(_ context.Context, email, displayID string, _ time.Time) error {
	s.logger.Debug("email disabled, skipping enrollment notice",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("display_id", displayID))
	return nil
}

func (s *NoopEmailService) SendPassRevokedEmail(_ context.Context, email, displayID string, _ time.Time) error {
	s.logger.Debug("email disabled, skipping revocation notice",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("display_id", displayID))
	return nil
}
