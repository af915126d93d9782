// Package envelope builds and parses the payload a pass presents for scanning.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidEnvelope is returned when a scanned payload is malformed
var ErrInvalidEnvelope = errors.New("invalid pass envelope")

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Envelope is the JSON document encoded into the pass QR symbol
type Envelope struct {
	Code      string `json:"t"`  // current one-time code
	Timestamp int64  `json:"ts"` // epoch milliseconds at generation
	SubjectID string `json:"u"`  // member the pass belongs to
}

// Build assembles an envelope for code generated at nowMillis
func Build(code, subjectID string, nowMillis int64) Envelope {
	return Envelope{
		Code:      code,
		Timestamp: nowMillis,
		SubjectID: subjectID,
	}
}

// IssuedAt returns the generation time carried in the envelope
func (e Envelope) IssuedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Validate checks that every field is present and the code is six digits
func (e Envelope) Validate() error {
	if !codePattern.MatchString(e.Code) {
		return fmt.Errorf("%w: code must be 6 digits", ErrInvalidEnvelope)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(e.SubjectID) == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidEnvelope)
	}
	return nil
}

// Marshal encodes the envelope as the compact JSON payload
func Marshal(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Parse decodes and validates a scanned payload
func Parse(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
