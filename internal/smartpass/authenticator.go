package smartpass

import (
	"context"
	"fmt"

	"github.com/mgclub/smartpass/internal/models"
)

// AuthOutcome is the result of a presence check on the member's device
type AuthOutcome int

const (
	AuthDeclined AuthOutcome = iota
	AuthAuthenticated
)

func (o AuthOutcome) String() string {
	if o == AuthAuthenticated {
		return "authenticated"
	}
	return "declined"
}

// Authenticator gates pass issuance behind a local presence check.
// Implementations must return ctx.Err() when ctx is cancelled while waiting.
type Authenticator interface {
	Authenticate(ctx context.Context, prompt string) (AuthOutcome, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, prompt string) (AuthOutcome, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, prompt string) (AuthOutcome, error) {
	return f(ctx, prompt)
}

// AlwaysAuthenticate approves every request. Used by unattended kiosks and tests.
var AlwaysAuthenticate = AuthenticatorFunc(func(ctx context.Context, prompt string) (AuthOutcome, error) {
	if err := ctx.Err(); err != nil {
		return AuthDeclined, err
	}
	return AuthAuthenticated, nil
})

// authenticate runs the check and maps a decline to models.ErrAuthDeclined
func authenticate(ctx context.Context, a Authenticator, prompt string) error {
	outcome, err := a.Authenticate(ctx, prompt)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if outcome != AuthAuthenticated {
		return fmt.Errorf("%w: %s", models.ErrAuthDeclined, prompt)
	}
	return nil
}
