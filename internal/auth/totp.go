package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	// StepPeriod is the length of one time step in seconds
	StepPeriod = 30
	// CodeDigits is the width of generated codes
	CodeDigits = 6
	// DefaultToleranceSteps accepts codes one step either side of the verifier's clock
	DefaultToleranceSteps = 1
)

// ErrInvalidTime is returned for instants before the Unix epoch
var ErrInvalidTime = errors.New("time before unix epoch")

// CodeGenerator derives and validates time-stepped one-time codes (RFC 6238, SHA-1, 6 digits, 30s)
type CodeGenerator struct {
	opts hotp.ValidateOpts
}

// NewCodeGenerator creates a generator with the fixed pass parameters
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{
		opts: hotp.ValidateOpts{
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// TimeStep returns floor(epochSeconds / StepPeriod)
func TimeStep(epochSeconds int64) int64 {
	step := epochSeconds / StepPeriod
	if epochSeconds%StepPeriod < 0 {
		step--
	}
	return step
}

// SecondsRemaining returns how long the current code stays valid, in [1, StepPeriod]
func SecondsRemaining(epochSeconds int64) int {
	elapsed := epochSeconds % StepPeriod
	if elapsed < 0 {
		elapsed += StepPeriod
	}
	return StepPeriod - int(elapsed)
}

// Generate returns the code for the time step containing epochSeconds
func (g *CodeGenerator) Generate(secret Secret, epochSeconds int64) (string, error) {
	if epochSeconds < 0 {
		return "", ErrInvalidTime
	}
	return g.codeAt(secret, TimeStep(epochSeconds))
}

// Validate reports whether code matches any step within tolerance of epochSeconds
func (g *CodeGenerator) Validate(secret Secret, code string, epochSeconds int64, tolerance int) bool {
	_, ok := g.Match(secret, code, epochSeconds, tolerance)
	return ok
}

// Match finds the time step a code belongs to.
// Every candidate step is computed and compared, so timing does not reveal which one matched.
func (g *CodeGenerator) Match(secret Secret, code string, epochSeconds int64, tolerance int) (int64, bool) {
	if epochSeconds < 0 || tolerance < 0 || secret.IsZero() {
		return 0, false
	}

	current := TimeStep(epochSeconds)
	presented := []byte(code)
	matched := 0
	found := 0

	for offset := -tolerance; offset <= tolerance; offset++ {
		step := current + int64(offset)
		if step < 0 {
			continue
		}

		expected, err := g.codeAt(secret, step)
		if err != nil {
			return 0, false
		}

		eq := subtle.ConstantTimeCompare([]byte(expected), presented)
		first := eq & (1 - found)
		matched = subtle.ConstantTimeSelect(first, int(step), matched)
		found |= eq
	}

	if found == 0 {
		return 0, false
	}
	return int64(matched), true
}

func (g *CodeGenerator) codeAt(secret Secret, step int64) (string, error) {
	if secret.IsZero() {
		return "", ErrInvalidSecret
	}

	code, err := hotp.GenerateCodeCustom(secret.Base32(), uint64(step), g.opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}
