package handlers

import "time"

// EnrollPassRequest registers the secret generated on the member's device
type EnrollPassRequest struct {
	Secret string `json:"secret" validate:"required,min=26,max=128,base32secret"`
}

// EnrollPassResponse is returned after a successful enrollment
type EnrollPassResponse struct {
	SubjectID  string    `json:"subject_id"`
	DisplayID  string    `json:"display_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// PassStatusResponse describes the caller's enrollment
type PassStatusResponse struct {
	Enrolled   bool       `json:"enrolled"`
	DisplayID  string     `json:"display_id,omitempty"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty"`
}

// ScanRequest is a code read from a presented pass
type ScanRequest struct {
	SubjectID string `json:"subjectId" validate:"required,max=128"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

// ScanResponse reports the verification outcome
type ScanResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
