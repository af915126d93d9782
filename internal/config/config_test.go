package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSealKey = "0123456789abcdef0123456789abcdef"

// setRequiredEnv sets the variables Load cannot start without
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("PASS_SEAL_KEY", testSealKey)
}

// ============================================================================
// Server timeouts
// ============================================================================

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	t.Setenv("SERVER_IDLE_TIMEOUT", "120s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	// Invalid duration should fall back to default
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestServerConfig_Timeouts_ZeroValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	// Explicitly setting 0s should be honored (no timeout)
	assert.Equal(t, time.Duration(0), cfg.Server.ReadTimeout)
}

// ============================================================================
// Required values and validation
// ============================================================================

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		want  string
	}{
		{"jwt secret", "JWT_SECRET", "JWT_SECRET is required"},
		{"db password", "DB_PASSWORD", "DB_PASSWORD is required"},
		{"seal key", "PASS_SEAL_KEY", "PASS_SEAL_KEY is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ShortSealKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PASS_SEAL_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestLoad_ToleranceOutOfRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PASS_TOLERANCE_STEPS", "5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_WeakJWTSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", strings.Repeat("a", 20))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_PassDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []byte(testSealKey), cfg.Pass.SealKey)
	assert.Equal(t, "MGCLUB", cfg.Pass.Issuer)
	assert.Equal(t, 1, cfg.Pass.ToleranceSteps)
	assert.Equal(t, 5, cfg.Pass.MaxFailedScans)
	assert.Equal(t, 90*time.Second, cfg.Pass.MaxEnvelopeAge)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Email.Enabled)
}

func TestLoad_PerIPLimitBelowSubjectLimit(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PASS_MAX_FAILED_SCANS", "10")
	t.Setenv("PASS_MAX_FAILED_SCANS_PER_IP", "3")

	_, err := Load()
	assert.ErrorContains(t, err, "PASS_MAX_FAILED_SCANS_PER_IP")
}

func TestLoad_TrustedProxies(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.0.0/16 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , "))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
}

func TestValidateJWTSecret(t *testing.T) {
	assert.NoError(t, validateJWTSecret("dev-secret-16-chars", "development"))
	assert.Error(t, validateJWTSecret("short", "development"))
	assert.Error(t, validateJWTSecret("dev-secret-16-chars", "production"))
	assert.Error(t, validateJWTSecret("changeme", "development"))
}

// ============================================================================
// Client
// ============================================================================

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("SMARTPASS_SUBJECT_ID", "member-42")

	cfg, err := LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.VerifierURL)
	assert.Equal(t, StoreKeyring, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing subject", map[string]string{"SMARTPASS_SUBJECT_ID": ""}, "SMARTPASS_SUBJECT_ID"},
		{"bad url", map[string]string{"SMARTPASS_VERIFIER_URL": "ftp://example"}, "SMARTPASS_VERIFIER_URL"},
		{"bad store", map[string]string{"SMARTPASS_STORE": "memory"}, "SMARTPASS_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SMARTPASS_SUBJECT_ID", "member-42")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadClient()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
