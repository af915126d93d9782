package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestAuditLogger_LogScanAttempt_Failure(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogScanAttempt(AuditEvent{
		EventType:     "pass_scan",
		SubjectID:     "member-42",
		IPAddress:     "203.0.113.7",
		FailureReason: "invalid_code",
	})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "scan", record["audit_type"])
	assert.Equal(t, "member-42", record["subject_id"])
	assert.Equal(t, "invalid_code", record["failure_reason"])
	assert.Equal(t, false, record["success"])
}

func TestAuditLogger_LogScanAttempt_Success(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogScanAttempt(AuditEvent{EventType: "pass_scan", SubjectID: "member-42", Success: true})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "INFO", record["level"])
	assert.NotContains(t, record, "failure_reason")
}

func TestAuditLogger_LogPassAction(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogPassAction("pass_enrolled", "member-42", "", map[string]string{"display_id": "MG-1A2B-X"})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "pass", record["audit_type"])
	assert.Equal(t, "pass_enrolled", record["event_type"])
	assert.Equal(t, "MG-1A2B-X", record["display_id"])
	assert.NotContains(t, record, "ip_address")
}

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "m*****@******.com", SanitizedEmail("member@mgclub.com"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("k", "v", "production").Value.String())
	assert.Equal(t, "v", RedactedAttr("k", "v", "development").Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("userId=42&code=324550"))
	assert.True(t, SanitizeQueryString("token=abc"))
	assert.False(t, SanitizeQueryString("page=2"))
	assert.False(t, SanitizeQueryString(""))
}
