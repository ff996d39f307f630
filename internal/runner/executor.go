package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SkyZonDev/scrappex/internal/journal"
	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/race"
	"github.com/SkyZonDev/scrappex/internal/store"
)

const defaultCancelPoll = 200 * time.Millisecond

// AcquireFunc establishes the session a batch races on.
type AcquireFunc func(ctx context.Context) (*race.Session, error)

// Notifier is told about every batch that reached a terminal status.
type Notifier interface {
	BatchFinished(ctx context.Context, b models.Batch) error
}

// Executor runs one stored batch from claim to terminal status.
type Executor struct {
	store      store.Store
	acquire    AcquireFunc
	coord      *race.Coordinator
	journal    *journal.Journal
	notifier   Notifier
	workerID   string
	cancelPoll time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type ExecutorOption func(*Executor)

func WithJournal(j *journal.Journal) ExecutorOption { return func(e *Executor) { e.journal = j } }

func WithNotifier(n Notifier) ExecutorOption { return func(e *Executor) { e.notifier = n } }

func WithWorkerID(id string) ExecutorOption { return func(e *Executor) { e.workerID = id } }

func WithCancelPoll(d time.Duration) ExecutorOption { return func(e *Executor) { e.cancelPoll = d } }

func WithExecutorLogger(l *slog.Logger) ExecutorOption { return func(e *Executor) { e.logger = l } }

func NewExecutor(st store.Store, acquire AcquireFunc, coord *race.Coordinator, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:      st,
		acquire:    acquire,
		coord:      coord,
		workerID:   "worker-1",
		cancelPoll: defaultCancelPoll,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cancelPoll <= 0 {
		e.cancelPoll = defaultCancelPoll
	}
	return e
}

// Execute returns an error only when the registry could not be read or
// written; a failed login or a lost race are recorded on the batch instead.
func (e *Executor) Execute(ctx context.Context, batchID string) error {
	log := e.logger.With("batch_id", batchID, "worker_id", e.workerID)

	// A caller that is already gone leaves the batch pending for redelivery.
	if err := ctx.Err(); err != nil {
		return err
	}

	// 1) Load and claim
	b, err := e.store.GetBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("batch gone before execution")
		return nil
	}
	if err != nil {
		return err
	}
	claimed, err := e.store.MarkRunning(ctx, batchID, e.workerID, e.now().UnixMilli())
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("batch already claimed", "status", b.Status)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if b.CancelRequested {
		cancel()
	}
	go e.watchCancel(runCtx, batchID, cancel, log)

	// 2) Session; failure here is the only batch-level error
	var sess *race.Session
	if runCtx.Err() == nil {
		sess, err = e.acquire(runCtx)
	}
	var result models.BatchResult
	switch {
	case runCtx.Err() != nil:
		// Cancel request, eviction or shutdown: no lot fired, so it is not
		// a login failure whatever acquire returned.
		sess.Close()
		log.Info("batch cancelled before racing", "cause", runCtx.Err())
		result = cancelledResult(b.Lots, runCtx.Err(), e.now())
	case err == nil:
		// 3) Race every lot
		result = e.coord.Run(runCtx, sess, b.Lots)
	default:
		log.Warn("session acquisition failed", "error", err)
		if ferr := e.store.Fail(context.WithoutCancel(ctx), batchID, err.Error(), e.now().UnixMilli()); ferr != nil {
			return ferr
		}
		e.finish(context.WithoutCancel(ctx), batchID, log)
		return nil
	}

	// 4) Persist even when the caller's context is gone
	if err := e.store.Complete(context.WithoutCancel(ctx), batchID, result, e.now().UnixMilli()); err != nil {
		return err
	}
	log.Info("batch completed", "lots", len(result.Lots), "won", result.Won())
	e.finish(context.WithoutCancel(ctx), batchID, log)
	return nil
}

// watchCancel polls the registry for a cancel request or eviction.
func (e *Executor) watchCancel(ctx context.Context, batchID string, cancel context.CancelFunc, log *slog.Logger) {
	ticker := time.NewTicker(e.cancelPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b, err := e.store.GetBatch(ctx, batchID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Info("batch evicted while running, cancelling")
			cancel()
			return
		case err != nil:
			if ctx.Err() == nil {
				log.Warn("cancel poll failed", "error", err)
			}
		case b.CancelRequested:
			log.Info("cancel requested")
			cancel()
			return
		}
	}
}

// finish journals and notifies a terminal batch. Both are best effort.
func (e *Executor) finish(ctx context.Context, batchID string, log *slog.Logger) {
	b, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		log.Warn("reload after completion failed", "error", err)
		return
	}
	if err := e.journal.RecordBatch(*b, e.now()); err != nil {
		log.Warn("journal write failed", "error", err)
	}
	if e.notifier != nil {
		if err := e.notifier.BatchFinished(ctx, *b); err != nil {
			log.Warn("notification failed", "error", err)
		}
	}
}

func cancelledResult(lots []models.Lot, cause error, now time.Time) models.BatchResult {
	res := models.BatchResult{Lots: make([]models.LotResult, len(lots)), StartedAt: now, FinishedAt: now}
	for i, l := range lots {
		res.Lots[i] = models.LotResult{LotID: l.ID, TargetAt: l.TargetAt, Outcome: models.OutcomeCancelled, Error: cause.Error()}
	}
	return res
}
