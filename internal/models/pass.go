package models

import (
	"time"
)

// PassCredential is the verifier's copy of a member's Smart Pass secret
type PassCredential struct {
	ID              string
	SubjectID       string
	DisplayID       string
	SecretEncrypted []byte // AES-256-GCM sealed base32 secret
	SecretNonce     []byte // GCM nonce (12 bytes)
	LastScanStep    *int64 // Highest accepted time step, for replay prevention
	LastScanAt      *time.Time
	CreatedAt       time.Time
}

// ScanAttempt tracks verification attempts for throttling and audit
type ScanAttempt struct {
	ID            string
	SubjectID     string
	IPAddress     string
	Success       bool
	FailureReason *string
	AttemptedAt   time.Time
}

// Scan failure reasons reported to clients and stored with attempts
const (
	ScanReasonInvalidCode   = "invalid_code"
	ScanReasonReplayed      = "replayed"
	ScanReasonNotEnrolled   = "not_enrolled"
	ScanReasonStale         = "stale_envelope"
	ScanReasonRateLimited   = "rate_limited"
	ScanReasonInternalError = "internal_error"
)

// ScanResult is the outcome of verifying one presented code
type ScanResult struct {
	Success bool
	Reason  string
	Step    int64
}

// PassStatus summarizes a subject's enrollment
type PassStatus struct {
	Enrolled   bool
	DisplayID  string
	EnrolledAt *time.Time
	LastScanAt *time.Time
}
