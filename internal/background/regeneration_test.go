package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tickRecorder collects published ticks
type tickRecorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *tickRecorder) record(t Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *tickRecorder) all() []Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tick(nil), r.ticks...)
}

func goldenSource(t *testing.T) (CodeSource, *int) {
	t.Helper()
	secret, err := auth.ParseSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	g := auth.NewCodeGenerator()

	calls := 0
	return func(now time.Time) (string, error) {
		calls++
		return g.Generate(secret, now.Unix())
	}, &calls
}

// ============================================================================
// tick
// ============================================================================

func TestRegenerationScheduler_Tick_CountdownAndRollover(t *testing.T) {
	source, calls := goldenSource(t)
	rec := &tickRecorder{}
	clk := clock.NewManual(time.Unix(1700000000, 0))
	rs := NewRegenerationScheduler(source, rec.record, clk, newTestLogger())

	assert.Equal(t, StateIdle, rs.State())

	// 1700000000 has 10 seconds left in its step
	for i := 0; i < 11; i++ {
		rs.tick(clk.Now())
		clk.Advance(time.Second)
	}

	ticks := rec.all()
	require.Len(t, ticks, 11)
	assert.Equal(t, StateCounting, rs.State())

	assert.True(t, ticks[0].Regenerated)
	assert.Equal(t, "324550", ticks[0].Code)
	assert.Equal(t, 10, ticks[0].SecondsRemaining)

	for i := 1; i < 10; i++ {
		assert.False(t, ticks[i].Regenerated, "tick %d", i)
		assert.Equal(t, "324550", ticks[i].Code)
		assert.Equal(t, 10-i, ticks[i].SecondsRemaining)
	}

	// Step boundary at 1700000010
	assert.True(t, ticks[10].Regenerated)
	assert.Equal(t, "367665", ticks[10].Code)
	assert.Equal(t, 30, ticks[10].SecondsRemaining)
	assert.Equal(t, int64(56666667), ticks[10].Step)
	assert.Equal(t, int64(1700000010), ticks[10].GeneratedAt.Unix())

	assert.Equal(t, 2, *calls)
}

func TestRegenerationScheduler_Tick_SkippedSecondsStillRegenerate(t *testing.T) {
	source, _ := goldenSource(t)
	rec := &tickRecorder{}
	rs := NewRegenerationScheduler(source, rec.record, nil, newTestLogger())

	rs.tick(time.Unix(1700000000, 0))
	// Device slept through the 29 and 30 second marks
	rs.tick(time.Unix(1700000060, 0))

	ticks := rec.all()
	require.Len(t, ticks, 2)
	assert.True(t, ticks[1].Regenerated)
	assert.Equal(t, "870960", ticks[1].Code)
}

func TestRegenerationScheduler_Tick_GenerateError(t *testing.T) {
	rec := &tickRecorder{}
	rs := NewRegenerationScheduler(func(time.Time) (string, error) {
		return "", errors.New("keyring locked")
	}, rec.record, nil, newTestLogger())

	rs.tick(time.Unix(1700000000, 0))

	ticks := rec.all()
	require.Len(t, ticks, 1)
	assert.EqualError(t, ticks[0].Err, "keyring locked")
	assert.Empty(t, ticks[0].Code)
	assert.False(t, ticks[0].Regenerated)
	assert.Equal(t, 10, ticks[0].SecondsRemaining)
	assert.Equal(t, StateCounting, rs.State())
}

func TestRegenerationScheduler_Tick_RecoversAfterGenerateError(t *testing.T) {
	source, _ := goldenSource(t)
	failing := true
	rec := &tickRecorder{}
	rs := NewRegenerationScheduler(func(now time.Time) (string, error) {
		if failing {
			return "", errors.New("keyring locked")
		}
		return source(now)
	}, rec.record, nil, newTestLogger())

	failing = false
	rs.tick(time.Unix(1700000000, 0))

	// First second of the next step fails, so the old code must not survive it
	failing = true
	rs.tick(time.Unix(1700000010, 0))

	failing = false
	rs.tick(time.Unix(1700000011, 0))

	ticks := rec.all()
	require.Len(t, ticks, 3)
	assert.Equal(t, "324550", ticks[0].Code)

	assert.Error(t, ticks[1].Err)
	assert.Empty(t, ticks[1].Code)

	assert.NoError(t, ticks[2].Err)
	assert.True(t, ticks[2].Regenerated)
	assert.Equal(t, "367665", ticks[2].Code)
	assert.Equal(t, StateCounting, rs.State())
}

// ============================================================================
// Start / Stop
// ============================================================================

func TestRegenerationScheduler_StartPublishesImmediately(t *testing.T) {
	source, _ := goldenSource(t)
	rec := &tickRecorder{}
	rs := NewRegenerationScheduler(source, rec.record, nil, newTestLogger())
	rs.interval = 10 * time.Millisecond

	require.NoError(t, rs.Start(context.Background()))
	defer rs.Stop()

	assert.Eventually(t, func() bool { return len(rec.all()) >= 3 }, time.Second, 5*time.Millisecond)
	first := rec.all()[0]
	assert.True(t, first.Regenerated)
	assert.Len(t, first.Code, auth.CodeDigits)
}

func TestRegenerationScheduler_StartTwice(t *testing.T) {
	source, _ := goldenSource(t)
	rs := NewRegenerationScheduler(source, nil, nil, newTestLogger())

	require.NoError(t, rs.Start(context.Background()))
	defer rs.Stop()

	assert.ErrorIs(t, rs.Start(context.Background()), ErrSchedulerStarted)
}

func TestRegenerationScheduler_StopReleasesTimer(t *testing.T) {
	source, _ := goldenSource(t)
	rec := &tickRecorder{}
	rs := NewRegenerationScheduler(source, rec.record, nil, newTestLogger())
	rs.interval = 5 * time.Millisecond

	require.NoError(t, rs.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(rec.all()) >= 1 }, time.Second, time.Millisecond)

	rs.Stop()
	rs.Stop()
	assert.Equal(t, StateIdle, rs.State())

	count := len(rec.all())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, len(rec.all()))
}

func TestRegenerationScheduler_ContextCancelStops(t *testing.T) {
	source, _ := goldenSource(t)
	rs := NewRegenerationScheduler(source, nil, nil, newTestLogger())
	rs.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, rs.Start(ctx))
	cancel()

	select {
	case <-rs.done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after context cancellation")
	}
	assert.Equal(t, StateIdle, rs.State())
	rs.Stop()
}

func TestRegenerationScheduler_StopBeforeStart(t *testing.T) {
	source, _ := goldenSource(t)
	rs := NewRegenerationScheduler(source, nil, nil, newTestLogger())

	done := make(chan struct{})
	go func() {
		rs.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a scheduler that never started")
	}
}

func TestSchedulerState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "counting", StateCounting.String())
	assert.Equal(t, "regenerate", StateRegenerate.String())
}
