package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mgclub/smartpass/internal/config"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/internal/presenter"
	"github.com/mgclub/smartpass/internal/secretstore"
	"github.com/mgclub/smartpass/internal/smartpass"
)

func main() {
	cmd := "show"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "--help", "-h", "help":
		printUsage()
		return
	case "show", "enroll", "unlock", "reset":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	if err := run(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pass - MGCLUB Smart Pass presenter")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pass          Show the rotating pass (same as 'pass show')")
	fmt.Println("  pass enroll   Register this device's secret with the verifier")
	fmt.Println("  pass unlock   Confirm presence and check the current code once")
	fmt.Println("  pass reset    Forget this device's secret")
	fmt.Println("  pass help     Show this help")
}

func run(cmd string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg, cmd == "show")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	store := secretstore.NewStore(backend, logger)

	verifier := smartpass.NewHTTPVerifier(smartpass.VerifierConfig{
		BaseURL:     cfg.VerifierURL,
		MemberToken: cfg.MemberToken,
		Timeout:     cfg.HTTPTimeout,
		MaxRetries:  cfg.MaxRetries,
	}, logger)

	switch cmd {
	case "enroll":
		session := smartpass.NewSession(cfg.SubjectID, store, verifier, smartpass.AlwaysAuthenticate, nil, logger)
		return runEnroll(ctx, session)
	case "unlock":
		session := smartpass.NewSession(cfg.SubjectID, store, verifier, promptAuthenticator(os.Stdin, os.Stderr), nil, logger)
		return runUnlock(ctx, session)
	case "reset":
		return store.Clear(ctx)
	default:
		// The pass screen asks for the presence check itself
		confirmer := presenter.NewConfirmer()
		session := smartpass.NewSession(cfg.SubjectID, store, verifier, confirmer, nil, logger)
		return runShow(ctx, session, confirmer, envelope.NewRenderer(cfg.QRSize))
	}
}

func runEnroll(ctx context.Context, session *smartpass.Session) error {
	enrollment, err := session.Enroll(ctx)
	if errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("a pass is already enrolled for this member; run 'pass reset' on the old device or revoke it first")
	}
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled pass %s for %s\n", enrollment.DisplayID, enrollment.SubjectID)
	return nil
}

func runUnlock(ctx context.Context, session *smartpass.Session) error {
	pass, err := session.Unlock(ctx)
	if err != nil {
		if smartpass.CannotIssue(err) {
			return fmt.Errorf("pass storage unavailable on this device: %w", err)
		}
		return err
	}

	fmt.Printf("Pass %s  code %s  (%ds left)\n", pass.DisplayID, pass.Envelope.Code, pass.SecondsRemaining)
	switch pass.Status {
	case smartpass.StatusVerified:
		fmt.Println("Verified")
	case smartpass.StatusRejected:
		fmt.Printf("Rejected: %s\n", pass.Reason)
	default:
		fmt.Println("Not confirmed, verifier unreachable")
	}
	return nil
}

func runShow(ctx context.Context, session *smartpass.Session, confirmer *presenter.Confirmer, renderer *envelope.Renderer) error {
	m := presenter.NewModel(ctx, session, confirmer, renderer)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	stopPresenting, err := session.Present(ctx, func(pass *smartpass.Pass, err error) {
		p.Send(presenter.PassMsg{Pass: pass, Err: err})
	})
	if err != nil {
		return err
	}
	defer stopPresenting()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func newBackend(cfg *config.ClientConfig) (secretstore.Backend, error) {
	if cfg.Store == config.StoreKeyring {
		return secretstore.NewKeyringBackend(cfg.KeyringService), nil
	}
	return secretstore.NewFileBackend(cfg.StorePath)
}

// newLogger writes to stderr, or to the log file when the pass screen owns the terminal
func newLogger(cfg *config.ClientConfig, fullscreen bool) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case fullscreen:
		w = io.Discard
	}

	return slog.New(slog.NewTextHandler(w, opts)), closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// promptAuthenticator asks for confirmation on the terminal. Empty input or
// "y" confirms; anything else declines.
func promptAuthenticator(in io.Reader, out io.Writer) smartpass.Authenticator {
	reader := bufio.NewReader(in)
	return smartpass.AuthenticatorFunc(func(ctx context.Context, prompt string) (smartpass.AuthOutcome, error) {
		fmt.Fprintf(out, "%s. Press Enter to continue or type n to cancel: ", prompt)

		answer := make(chan string, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				answer <- "n"
				return
			}
			answer <- strings.TrimSpace(line)
		}()

		select {
		case <-ctx.Done():
			return smartpass.AuthDeclined, ctx.Err()
		case a := <-answer:
			if a == "" || strings.EqualFold(a, "y") || strings.EqualFold(a, "yes") {
				return smartpass.AuthAuthenticated, nil
			}
			return smartpass.AuthDeclined, nil
		}
	})
}
