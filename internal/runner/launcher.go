package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/store"
)

// Launcher hands a stored pending batch to whatever executes it.
type Launcher interface {
	Launch(ctx context.Context, b models.Batch) error
}

// StartAt is when execution should begin: lead before the earliest lot, so
// login and warm-up finish in time without the session going stale.
func StartAt(b models.Batch, lead time.Duration) time.Time {
	return b.EarliestTarget().Add(-lead)
}

// InProcess runs batches on goroutines of the current process.
type InProcess struct {
	exec   *Executor
	lead   time.Duration
	base   context.Context
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewInProcess runs batches under base, so cancelling base stops every
// batch that has not dispatched yet.
func NewInProcess(base context.Context, exec *Executor, lead time.Duration, logger *slog.Logger) *InProcess {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcess{exec: exec, lead: lead, base: base, logger: logger}
}

func (l *InProcess) Launch(_ context.Context, b models.Batch) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if !l.waitForStart(b) {
			l.logger.Info("shutting down before batch start", "batch_id", b.BatchID)
			return
		}
		if err := l.exec.Execute(l.base, b.BatchID); err != nil {
			l.logger.Error("batch execution failed", "batch_id", b.BatchID, "error", err)
		}
	}()
	return nil
}

// waitForStart sleeps until the batch start time, or until a cancel request
// or eviction shows up in the registry so Execute can record it at once.
// It reports false when base is done; the batch then stays pending.
func (l *InProcess) waitForStart(b models.Batch) bool {
	wait := time.Until(StartAt(b, l.lead))
	if wait <= 0 {
		return l.base.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(l.exec.cancelPoll)
	defer ticker.Stop()

	for {
		select {
		case <-l.base.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
		}
		cur, err := l.exec.store.GetBatch(l.base, b.BatchID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return true
		case err != nil:
			l.logger.Warn("pre-start poll failed", "batch_id", b.BatchID, "error", err)
		case cur.CancelRequested:
			return true
		}
	}
}

// Wait blocks until every launched batch has returned.
func (l *InProcess) Wait() { l.wg.Wait() }

// SchedulePublisher is the queue side of the scheduler/worker pipeline.
type SchedulePublisher interface {
	PublishSchedule(ctx context.Context, batchID string, startAt time.Time) error
}

// Queue defers batches to the scheduler and worker processes.
type Queue struct {
	pub  SchedulePublisher
	lead time.Duration
}

func NewQueue(pub SchedulePublisher, lead time.Duration) *Queue {
	return &Queue{pub: pub, lead: lead}
}

func (q *Queue) Launch(ctx context.Context, b models.Batch) error {
	return q.pub.PublishSchedule(ctx, b.BatchID, StartAt(b, q.lead))
}
