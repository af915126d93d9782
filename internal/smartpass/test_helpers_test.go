package smartpass

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/stretchr/testify/require"
)

const (
	rfcSecret  = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	rfcEpoch   = 1234567890
	rfcCode    = "005924"
	testMember = "member-1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustSecret(t *testing.T, encoded string) auth.Secret {
	t.Helper()
	s, err := auth.ParseSecret(encoded)
	require.NoError(t, err)
	return s
}

// staticSecrets implements SecretSource
type staticSecrets struct {
	secret auth.Secret
	err    error
	calls  int
}

func (s *staticSecrets) GetOrCreateSecret(ctx context.Context) (auth.Secret, error) {
	s.calls++
	return s.secret, s.err
}

// MockVerifier implements Verifier
type MockVerifier struct {
	EnrollFunc func(ctx context.Context, secret auth.Secret) (*Enrollment, error)
	ScanFunc   func(ctx context.Context, subjectID, code string) (*ScanOutcome, error)

	mu    sync.Mutex
	codes []string
}

func (m *MockVerifier) Enroll(ctx context.Context, secret auth.Secret) (*Enrollment, error) {
	if m.EnrollFunc != nil {
		return m.EnrollFunc(ctx, secret)
	}
	return &Enrollment{DisplayID: secret.DisplayID()}, nil
}

func (m *MockVerifier) Scan(ctx context.Context, subjectID, code string) (*ScanOutcome, error) {
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()
	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, subjectID, code)
	}
	return &ScanOutcome{Success: true}, nil
}

func (m *MockVerifier) scannedCodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.codes...)
}
