package presenter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/internal/smartpass"
)

// Unlocker runs the presence check and submits the current code
type Unlocker interface {
	Unlock(ctx context.Context) (*smartpass.Pass, error)
}

// PassMsg carries a pass from the regeneration scheduler into the program.
// Err is set instead of Pass when no code could be generated.
type PassMsg struct {
	Pass *smartpass.Pass
	Err  error
}

type unlockedMsg struct {
	pass *smartpass.Pass
	err  error
}

// Model is the bubbletea model for the pass screen. It starts locked: the
// code and QR stay hidden until an unlock passes the presence check.
type Model struct {
	ctx       context.Context
	unlocker  Unlocker
	confirmer *Confirmer
	renderer  *envelope.Renderer
	styles    *Styles

	locked    bool
	confirm   *confirmRequest // presence prompt awaiting an answer
	pass      *smartpass.Pass
	qr        string
	qrCode    string
	status    smartpass.PassStatus
	reason    string
	checked   string // code the status refers to
	unlocking bool
	genErr    error
	err       error

	width  int
	height int
}

// NewModel creates the pass screen. ctx bounds unlock requests. When the
// unlocker's presence check is confirmer, its prompts are answered here.
func NewModel(ctx context.Context, unlocker Unlocker, confirmer *Confirmer, renderer *envelope.Renderer) Model {
	return Model{
		ctx:       ctx,
		unlocker:  unlocker,
		confirmer: confirmer,
		renderer:  renderer,
		styles:    NewStyles(),
		locked:    true,
		status:    smartpass.StatusPresenting,
	}
}

func (m Model) Init() tea.Cmd {
	if m.confirmer == nil {
		return nil
	}
	return m.confirmer.wait(m.ctx)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case PassMsg:
		if msg.Err != nil {
			m.genErr = msg.Err
			m.pass = nil
			return m, nil
		}
		return m.setPass(msg.Pass), nil

	case confirmMsg:
		req := msg.req
		m.confirm = &req
		return m, nil

	case unlockedMsg:
		m.unlocking = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if msg.pass == nil {
			return m, nil
		}
		m.err = nil
		m.locked = false
		m = m.setPass(msg.pass)
		m.status = msg.pass.Status
		m.reason = msg.pass.Reason
		m.checked = msg.pass.Envelope.Code
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		switch msg.String() {
		case "y":
			return m.answer(true)
		case "n", "esc":
			return m.answer(false)
		case "ctrl+c":
			next, _ := m.answer(false)
			return next, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "enter", "u":
		if m.unlocking {
			return m, nil
		}
		m.unlocking = true
		m.err = nil
		return m, unlockCmd(m.ctx, m.unlocker)
	}
	return m, nil
}

// answer resolves the pending presence prompt and waits for the next one
func (m Model) answer(ok bool) (Model, tea.Cmd) {
	m.confirm.answer <- ok
	m.confirm = nil
	return m, m.confirmer.wait(m.ctx)
}

// setPass stores p. A verifier answer stays on screen until the code rolls over.
func (m Model) setPass(p *smartpass.Pass) Model {
	if p == nil {
		return m
	}
	m.pass = p
	m.genErr = nil
	if p.Envelope.Code != m.checked {
		m.status = smartpass.StatusPresenting
		m.reason = ""
		m.checked = ""
	}
	if p.Envelope.Code != m.qrCode {
		qr, err := m.renderer.Terminal(p.Envelope)
		if err != nil {
			m.err = err
			return m
		}
		m.qr = qr
		m.qrCode = p.Envelope.Code
	}
	return m
}

func unlockCmd(ctx context.Context, u Unlocker) tea.Cmd {
	return func() tea.Msg {
		pass, err := u.Unlock(ctx)
		return unlockedMsg{pass: pass, err: err}
	}
}

func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("MGCLUB Smart Pass"))
	b.WriteString("\n\n")

	help := "[Enter] Check again • [q] Quit"
	switch {
	case m.confirm != nil:
		b.WriteString(s.Pending.Render(m.confirm.prompt + "?"))
		b.WriteString("\n")
		b.WriteString(s.Label.Render("Confirm it's you to show the pass"))
		b.WriteString("\n")
		help = "[y] Confirm • [n] Cancel"
	case m.locked:
		if m.unlocking {
			b.WriteString(s.Pending.Render("Unlocking..."))
		} else {
			b.WriteString(s.Label.Render("Pass locked"))
		}
		b.WriteString("\n")
		help = "[Enter] Unlock • [q] Quit"
	case m.pass == nil:
		b.WriteString(s.Label.Render("Preparing pass..."))
		b.WriteString("\n")
	default:
		b.WriteString(m.qr)
		b.WriteString("\n")
		b.WriteString(s.Code.Render(m.pass.Envelope.Code))
		b.WriteString("  ")
		b.WriteString(m.countdown())
		b.WriteString("\n\n")
		b.WriteString(s.Label.Render("Pass ID  "))
		b.WriteString(s.Value.Render(m.pass.DisplayID))
		b.WriteString("\n")
		b.WriteString(s.Label.Render("Member   "))
		b.WriteString(s.Value.Render(m.pass.Envelope.SubjectID))
		b.WriteString("\n\n")
		b.WriteString(m.statusLine())
		b.WriteString("\n")
	}

	for _, err := range []error{m.genErr, m.err} {
		if err == nil {
			continue
		}
		b.WriteString("\n")
		b.WriteString(s.Error.Render(errorText(err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(s.Help.Render(help))

	content := s.Box.Render(b.String())
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// countdown draws the time left on the current code
func (m Model) countdown() string {
	const width = auth.StepPeriod
	left := m.pass.SecondsRemaining
	if left < 0 {
		left = 0
	}
	if left > width {
		left = width
	}
	bar := m.styles.BarFull.Render(strings.Repeat("█", left)) +
		m.styles.BarEmpty.Render(strings.Repeat("░", width-left))
	return fmt.Sprintf("%s %2ds", bar, left)
}

func (m Model) statusLine() string {
	s := m.styles
	if m.unlocking {
		return s.Pending.Render("Checking with the front desk...")
	}
	switch m.status {
	case smartpass.StatusVerified:
		return s.Verified.Render("✓ Verified")
	case smartpass.StatusRejected:
		return s.Rejected.Render("✗ Rejected: " + reasonText(m.reason))
	case smartpass.StatusUnconfirmed:
		return s.Pending.Render("Not confirmed, verifier unreachable")
	default:
		return s.Label.Render("Show this code at the door")
	}
}

func reasonText(reason string) string {
	switch reason {
	case models.ScanReasonInvalidCode:
		return "code not accepted"
	case models.ScanReasonReplayed:
		return "code already used"
	case models.ScanReasonNotEnrolled:
		return "pass not enrolled"
	case models.ScanReasonStale:
		return "pass expired"
	case models.ScanReasonRateLimited:
		return "too many attempts, try again later"
	case "":
		return "no reason given"
	default:
		return reason
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, models.ErrAuthDeclined):
		return "Unlock cancelled"
	case smartpass.CannotIssue(err):
		return "Pass storage unavailable on this device"
	default:
		return err.Error()
	}
}
