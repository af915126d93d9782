package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/internal/services"
	pkghttp "github.com/mgclub/smartpass/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds member claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockPassService implements PassServiceInterface for testing
type MockPassService struct {
	EnrollFunc         func(ctx context.Context, subjectID, email, encodedSecret, ipAddress string) (*models.PassCredential, error)
	StatusFunc         func(ctx context.Context, subjectID string) (*models.PassStatus, error)
	RevokeFunc         func(ctx context.Context, subjectID, email, ipAddress string) error
	VerifyScanFunc     func(ctx context.Context, req services.ScanRequest) (*models.ScanResult, error)
	VerifyEnvelopeFunc func(ctx context.Context, env envelope.Envelope, ipAddress, userAgent string) (*models.ScanResult, error)
}

func (m *MockPassService) Enroll(ctx context.Context, subjectID, email, encodedSecret, ipAddress string) (*models.PassCredential, error) {
	if m.EnrollFunc != nil {
		return m.EnrollFunc(ctx, subjectID, email, encodedSecret, ipAddress)
	}
	return nil, nil
}

func (m *MockPassService) Status(ctx context.Context, subjectID string) (*models.PassStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, subjectID)
	}
	return &models.PassStatus{}, nil
}

func (m *MockPassService) Revoke(ctx context.Context, subjectID, email, ipAddress string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, subjectID, email, ipAddress)
	}
	return nil
}

func (m *MockPassService) VerifyScan(ctx context.Context, req services.ScanRequest) (*models.ScanResult, error) {
	if m.VerifyScanFunc != nil {
		return m.VerifyScanFunc(ctx, req)
	}
	return &models.ScanResult{}, nil
}

func (m *MockPassService) VerifyEnvelope(ctx context.Context, env envelope.Envelope, ipAddress, userAgent string) (*models.ScanResult, error) {
	if m.VerifyEnvelopeFunc != nil {
		return m.VerifyEnvelopeFunc(ctx, env, ipAddress, userAgent)
	}
	return &models.ScanResult{}, nil
}
