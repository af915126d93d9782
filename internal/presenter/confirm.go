package presenter

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mgclub/smartpass/internal/smartpass"
)

// Confirmer is a smartpass.Authenticator answered from the pass screen.
// Authenticate blocks until the member answers the prompt shown by Model.
type Confirmer struct {
	requests chan confirmRequest
}

type confirmRequest struct {
	prompt string
	answer chan bool
}

// confirmMsg asks the model to show a presence prompt
type confirmMsg struct {
	req confirmRequest
}

func NewConfirmer() *Confirmer {
	return &Confirmer{requests: make(chan confirmRequest)}
}

func (c *Confirmer) Authenticate(ctx context.Context, prompt string) (smartpass.AuthOutcome, error) {
	req := confirmRequest{prompt: prompt, answer: make(chan bool, 1)}

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return smartpass.AuthDeclined, ctx.Err()
	}

	select {
	case ok := <-req.answer:
		if ok {
			return smartpass.AuthAuthenticated, nil
		}
		return smartpass.AuthDeclined, nil
	case <-ctx.Done():
		return smartpass.AuthDeclined, ctx.Err()
	}
}

// wait delivers the next prompt to the program
func (c *Confirmer) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case req := <-c.requests:
			return confirmMsg{req: req}
		case <-ctx.Done():
			return nil
		}
	}
}
