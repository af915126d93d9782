package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Pass issuance errors
	ErrStorageUnavailable = errors.New("secret storage unavailable")
	ErrAuthDeclined       = errors.New("presence check declined")

	// Pass verification errors
	ErrPassNotEnrolled         = errors.New("no pass enrolled for subject")
	ErrClockSkewRejected       = errors.New("code does not match any step within tolerance")
	ErrCodeReplayed            = errors.New("code already used")
	ErrStaleEnvelope           = errors.New("envelope timestamp outside accepted window")
	ErrScanRateLimited         = errors.New("too many failed scans")
	ErrVerificationUnreachable = errors.New("verifier unreachable")
)
