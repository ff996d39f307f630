package race

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFineNeverWakesBeforeTarget(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 59, 59, 0, time.UTC)
	for _, tc := range []struct {
		name      string
		step      time.Duration
		oversleep time.Duration
		lead      time.Duration
	}{
		{"steady clock", time.Microsecond, 0, 5 * time.Millisecond},
		{"jittery scheduler", 7 * time.Microsecond, 900 * time.Microsecond, 40 * time.Millisecond},
		{"slow clock reads", 120 * time.Microsecond, 300 * time.Microsecond, 3 * time.Second},
		{"target already passed", 10 * time.Microsecond, 0, -time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clk := newFakeClock(start)
			clk.step = tc.step
			clk.oversleep = tc.oversleep

			cfg := DefaultConfig()
			cfg.FineStep = time.Millisecond
			s := NewSynchronizer(cfg, clk)

			target := start.Add(tc.lead)
			offset := s.Fine(target)
			assert.GreaterOrEqual(t, offset, time.Duration(0))
			if tc.lead > 0 {
				assert.Less(t, offset, 5*time.Millisecond)
			}
		})
	}
}

func TestFineSpinsInsteadOfSleepingNearTarget(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := newFakeClock(start)
	clk.step = time.Microsecond

	cfg := DefaultConfig()
	cfg.SpinWindow = 2 * time.Millisecond
	s := NewSynchronizer(cfg, clk)

	s.Fine(start.Add(time.Millisecond))
	assert.Zero(t, clk.sleeps, "inside the spin window the clock must be polled, not slept on")
}

func TestCoarseStopsAtThreshold(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := newFakeClock(start)

	s := NewSynchronizer(DefaultConfig(), clk)
	target := start.Add(time.Minute)
	require.NoError(t, s.Coarse(context.Background(), target))

	rem := s.Remaining(target)
	assert.LessOrEqual(t, rem, 3*time.Second)
	assert.Greater(t, rem, 2*time.Second)
}

func TestCoarseHonoursCancellation(t *testing.T) {
	s := NewSynchronizer(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.Coarse(ctx, time.Now().Add(time.Hour))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitUntilOnSystemClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FineStep = time.Millisecond
	s := NewSynchronizer(cfg, nil)

	target := time.Now().Add(30 * time.Millisecond)
	offset, err := s.WaitUntil(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, time.Now().Before(target))
	assert.GreaterOrEqual(t, offset, time.Duration(0))
	assert.Less(t, offset, 20*time.Millisecond)
}
