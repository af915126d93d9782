package smartpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/sethvargo/go-retry"
)

// maxResponseBody caps how much of a verifier response is read
const maxResponseBody = 64 << 10

// Enrollment is the verifier's confirmation of a registered secret
type Enrollment struct {
	SubjectID  string    `json:"subject_id"`
	DisplayID  string    `json:"display_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// ScanOutcome is the verifier's answer to one submitted code
type ScanOutcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Verifier is the remote side of the pass
type Verifier interface {
	Enroll(ctx context.Context, secret auth.Secret) (*Enrollment, error)
	Scan(ctx context.Context, subjectID, code string) (*ScanOutcome, error)
}

// VerifierConfig configures HTTPVerifier
type VerifierConfig struct {
	BaseURL     string
	MemberToken string
	Timeout     time.Duration // per attempt
	MaxRetries  uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// HTTPVerifier talks JSON to the verifier API. Transport failures and 5xx
// responses are retried with capped exponential backoff; once retries are
// exhausted the call fails with models.ErrVerificationUnreachable.
type HTTPVerifier struct {
	baseURL string
	token   string
	client  *http.Client
	config  VerifierConfig
	logger  *slog.Logger
}

// NewHTTPVerifier creates a verifier client
func NewHTTPVerifier(config VerifierConfig, logger *slog.Logger) *HTTPVerifier {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 200 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.MemberToken,
		client:  &http.Client{},
		config:  config,
		logger:  logger,
	}
}

type enrollRequest struct {
	Secret string `json:"secret"`
}

type scanRequest struct {
	SubjectID string `json:"subjectId"`
	Code      string `json:"code"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Enroll registers the secret for the member identified by the configured token
func (v *HTTPVerifier) Enroll(ctx context.Context, secret auth.Secret) (*Enrollment, error) {
	if v.token == "" {
		return nil, fmt.Errorf("%w: member token required for enrollment", models.ErrUnauthorized)
	}

	status, body, err := v.post(ctx, "/passes/enroll", enrollRequest{Secret: secret.Base32()}, true)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		var enrollment Enrollment
		if err := json.Unmarshal(body, &enrollment); err != nil {
			return nil, fmt.Errorf("failed to decode enrollment response: %w", err)
		}
		return &enrollment, nil
	case status == http.StatusConflict:
		return nil, fmt.Errorf("%w: pass already enrolled", models.ErrConflict)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", models.ErrUnauthorized, errorMessage(body, status))
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, errorMessage(body, status))
	}
}

// Scan submits a code. A 4xx answer is a rejection, not an error.
func (v *HTTPVerifier) Scan(ctx context.Context, subjectID, code string) (*ScanOutcome, error) {
	status, body, err := v.post(ctx, "/smartpass/scan", scanRequest{SubjectID: subjectID, Code: code}, false)
	if err != nil {
		return nil, err
	}

	var outcome ScanOutcome
	if status >= 200 && status < 300 {
		if err := json.Unmarshal(body, &outcome); err != nil {
			return nil, fmt.Errorf("failed to decode scan response: %w", err)
		}
		return &outcome, nil
	}

	// 4xx: rejected. Keep a reason if the verifier sent one.
	_ = json.Unmarshal(body, &outcome)
	outcome.Success = false
	if outcome.Reason == "" {
		if status == http.StatusTooManyRequests {
			outcome.Reason = models.ScanReasonRateLimited
		} else {
			outcome.Reason = errorMessage(body, status)
		}
	}
	return &outcome, nil
}

// post sends one JSON request with retries and returns the final non-5xx response
func (v *HTTPVerifier) post(ctx context.Context, path string, payload any, authenticated bool) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	backoff := retry.NewExponential(v.config.BaseDelay)
	backoff = retry.WithCappedDuration(v.config.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(v.config.MaxRetries, backoff)

	var (
		status  int
		body    []byte
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		s, b, err := v.attempt(ctx, path, raw, authenticated)
		if err != nil {
			v.logger.Warn("verifier request failed",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return retry.RetryableError(err)
		}
		if s >= http.StatusInternalServerError {
			v.logger.Warn("verifier returned server error",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Int("status", s))
			return retry.RetryableError(fmt.Errorf("verifier returned status %d", s))
		}
		status, body = s, b
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("%w: %w", models.ErrVerificationUnreachable, err)
	}
	return status, body, nil
}

func (v *HTTPVerifier) attempt(ctx context.Context, path string, raw []byte, authenticated bool) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+v.token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// errorMessage extracts the verifier's error code, falling back to the status text
func errorMessage(body []byte, status int) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

var _ Verifier = (*HTTPVerifier)(nil)

// IsUnreachable reports whether err means the verifier could not be reached
func IsUnreachable(err error) bool {
	return errors.Is(err, models.ErrVerificationUnreachable)
}
