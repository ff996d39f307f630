package race

import (
	"context"
	"runtime"
	"time"
)

// Clock is the time source of the synchronizer and the dispatcher.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (systemClock) Sleep(d time.Duration)                  { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Synchronizer waits for a target instant in two phases. The coarse phase
// sleeps in relaxed steps while more than coarseThreshold remains. The fine
// phase polls the clock: it sleeps fineStep at a time until spinWindow is
// left, then busy-polls. Sleep granularity near zero is unreliable on
// commodity schedulers, so the last spinWindow is spent spinning; that is the
// CPU cost paid per lot for sub-millisecond precision.
type Synchronizer struct {
	clock           Clock
	coarseThreshold time.Duration
	coarseInterval  time.Duration
	fineStep        time.Duration
	spinWindow      time.Duration
}

func NewSynchronizer(cfg Config, clock Clock) *Synchronizer {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = SystemClock()
	}
	return &Synchronizer{
		clock:           clock,
		coarseThreshold: cfg.CoarseThreshold,
		coarseInterval:  cfg.CoarseInterval,
		fineStep:        cfg.FineStep,
		spinWindow:      cfg.SpinWindow,
	}
}

// Remaining returns the signed time left until target.
func (s *Synchronizer) Remaining(target time.Time) time.Duration {
	return target.Sub(s.clock.Now())
}

// Coarse blocks until at most coarseThreshold remains before target. It is
// the only phase that observes ctx.
func (s *Synchronizer) Coarse(ctx context.Context, target time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rem := s.Remaining(target)
		if rem <= s.coarseThreshold {
			return nil
		}
		wait := min(rem-s.coarseThreshold, s.coarseInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}
}

// Fine returns once the clock reads target or later, with the offset between
// the wake-up instant and target. The offset is never negative.
func (s *Synchronizer) Fine(target time.Time) time.Duration {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		rem := target.Sub(s.clock.Now())
		if rem <= 0 {
			return -rem
		}
		if rem > s.spinWindow {
			s.clock.Sleep(min(s.fineStep, rem-s.spinWindow))
			continue
		}
		runtime.Gosched()
	}
}

// WaitUntil runs both phases back to back.
func (s *Synchronizer) WaitUntil(ctx context.Context, target time.Time) (time.Duration, error) {
	if err := s.Coarse(ctx, target); err != nil {
		return 0, err
	}
	return s.Fine(target), nil
}
