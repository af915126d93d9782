package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/pkg/clock"
)

// ErrSchedulerStarted is returned when Start is called twice
var ErrSchedulerStarted = errors.New("regeneration scheduler already started")

// SchedulerState is the lifecycle state of a RegenerationScheduler
type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateCounting
	StateRegenerate
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCounting:
		return "counting"
	case StateRegenerate:
		return "regenerate"
	default:
		return "unknown"
	}
}

// CodeSource produces the code for the time step containing now
type CodeSource func(now time.Time) (string, error)

// Tick is published once per second while the scheduler runs
type Tick struct {
	Code             string
	Step             int64
	SecondsRemaining int
	GeneratedAt      time.Time // when Code was produced
	Regenerated      bool      // Code changed on this tick
	Err              error     // generation failed; Code is empty and the next tick retries
}

// RegenerationScheduler keeps the presented code current: it recomputes the
// countdown every interval and regenerates when the time step rolls over.
// OnTick is only ever called from the scheduler goroutine.
type RegenerationScheduler struct {
	generate CodeSource
	onTick   func(Tick)
	clock    clock.Clocker
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	state       SchedulerState
	lastStep    int64
	code        string
	generatedAt time.Time

	started  bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRegenerationScheduler creates a scheduler. A nil clock uses system time.
func NewRegenerationScheduler(
	generate CodeSource,
	onTick func(Tick),
	clk clock.Clocker,
	logger *slog.Logger,
) *RegenerationScheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegenerationScheduler{
		generate: generate,
		onTick:   onTick,
		clock:    clk,
		interval: time.Second,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (rs *RegenerationScheduler) State() SchedulerState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// Start generates a code immediately and then ticks every interval until
// Stop is called or ctx is done
func (rs *RegenerationScheduler) Start(ctx context.Context) error {
	rs.mu.Lock()
	if rs.started {
		rs.mu.Unlock()
		return ErrSchedulerStarted
	}
	rs.started = true
	rs.mu.Unlock()

	go rs.run(ctx)
	return nil
}

func (rs *RegenerationScheduler) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	rs.tick(rs.clock.Now())

	for {
		select {
		case <-ticker.C:
			rs.tick(rs.clock.Now())
		case <-rs.stopCh:
			rs.setIdle()
			return
		case <-ctx.Done():
			rs.setIdle()
			return
		}
	}
}

func (rs *RegenerationScheduler) setIdle() {
	rs.mu.Lock()
	rs.state = StateIdle
	rs.mu.Unlock()
}

// tick recomputes the countdown and regenerates when the step has changed
func (rs *RegenerationScheduler) tick(now time.Time) {
	epoch := now.Unix()
	step := auth.TimeStep(epoch)

	rs.mu.Lock()
	regenerated := false
	if rs.state == StateIdle || step != rs.lastStep {
		rs.state = StateRegenerate
		code, err := rs.generate(now)
		if err != nil {
			rs.code = ""
			rs.state = StateCounting
			rs.mu.Unlock()
			rs.logger.Error("failed to regenerate pass code", slog.Any("error", err))
			if rs.onTick != nil {
				rs.onTick(Tick{Step: step, SecondsRemaining: auth.SecondsRemaining(epoch), Err: err})
			}
			return
		}
		rs.code = code
		rs.lastStep = step
		rs.generatedAt = now
		regenerated = true
	}
	rs.state = StateCounting

	t := Tick{
		Code:             rs.code,
		Step:             rs.lastStep,
		SecondsRemaining: auth.SecondsRemaining(epoch),
		GeneratedAt:      rs.generatedAt,
		Regenerated:      regenerated,
	}
	rs.mu.Unlock()

	if rs.onTick != nil {
		rs.onTick(t)
	}
}

// Stop halts the scheduler and waits for its goroutine to exit.
// It is safe to call more than once and before Start.
func (rs *RegenerationScheduler) Stop() {
	rs.stopOnce.Do(func() {
		close(rs.stopCh)
	})

	rs.mu.Lock()
	started := rs.started
	rs.mu.Unlock()
	if started {
		<-rs.done
	}
}
