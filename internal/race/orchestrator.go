package race

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SkyZonDev/scrappex/internal/models"
)

// Orchestrator runs the whole race for a single lot.
type Orchestrator struct {
	cfg        Config
	clock      Clock
	sync       *Synchronizer
	warmer     *Warmer
	dispatcher *Dispatcher
	classifier Classifier
	logger     *slog.Logger
	obs        Observer
}

type Option func(*Orchestrator)

func WithClock(c Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.obs = obs } }

func NewOrchestrator(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg.withDefaults(),
		clock:  SystemClock(),
		logger: slog.Default(),
		obs:    nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.sync = NewSynchronizer(o.cfg, o.clock)
	o.warmer = NewWarmer(o.cfg, o.logger)
	o.dispatcher = NewDispatcher(o.cfg, o.clock)
	o.classifier = NewClassifier(o.cfg)
	return o
}

// RunLot never fails: cancellation before the deadline yields a cancelled
// result, every other problem degrades into a lost or all-attempts-failed lot.
func (o *Orchestrator) RunLot(ctx context.Context, sess *Session, lot models.Lot) models.LotResult {
	log := o.logger.With("lot", lot.ID, "target_at", lot.TargetAt.Format(time.RFC3339Nano))
	tr := newLotTracker(lot.ID, o.obs)

	if err := o.sync.Coarse(ctx, lot.TargetAt); err != nil {
		return o.cancelled(tr, lot, err, log)
	}

	// Warm-up runs beside the fine phase and is joined before the lot
	// resolves; Warm is bounded by WarmupTimeout.
	warmed := make(chan struct{})
	go func() {
		defer close(warmed)
		err := o.warmer.Warm(ctx, sess, lot.ID)
		if err != nil {
			log.Warn("warm-up failed, racing on a cold connection", "error", err)
		}
		o.obs.WarmupFinished(lot.ID, err)
	}()

	burst := o.dispatcher.Arm(ctx, sess, lot.ID)
	wake := o.sync.Fine(lot.TargetAt)
	if err := ctx.Err(); err != nil {
		burst.Abort()
		<-warmed
		return o.cancelled(tr, lot, err, log)
	}

	o.mustAdvance(tr, PhaseDispatched, log)
	attempts := burst.Fire()

	o.mustAdvance(tr, PhaseClassifying, log)
	records := make([]models.AttemptRecord, len(attempts))
	for i, a := range attempts {
		records[i] = o.classifier.Finalize(a)
		o.obs.AttemptFinished(records[i])
		if records[i].Verdict == models.VerdictIndeterminate {
			log.Debug("attempt inconclusive", "seq", records[i].Seq, "error", records[i].Error)
		}
	}

	<-warmed
	res := Resolve(lot, records, o.cfg.TieBreak)
	res.SyncOffset = dispatchOffset(records, lot.TargetAt)
	o.mustAdvance(tr, PhaseResolved, log)
	o.obs.LotResolved(res)

	log.Info("lot resolved",
		"outcome", res.Outcome,
		"wake_offset_us", wake.Microseconds(),
		"sync_offset_us", res.SyncOffset.Microseconds(),
		"elapsed_ms", res.Elapsed.Milliseconds(),
		"successes", res.Successes,
		"failures", res.Failures,
		"indeterminate", res.Indeterminate,
	)
	return res
}

func (o *Orchestrator) cancelled(tr *lotTracker, lot models.Lot, err error, log *slog.Logger) models.LotResult {
	o.mustAdvance(tr, PhaseResolved, log)
	res := models.LotResult{
		LotID:    lot.ID,
		TargetAt: lot.TargetAt,
		Outcome:  models.OutcomeCancelled,
		Error:    err.Error(),
	}
	o.obs.LotResolved(res)
	log.Info("lot cancelled before dispatch", "error", err)
	return res
}

func (o *Orchestrator) mustAdvance(tr *lotTracker, to Phase, log *slog.Logger) {
	if err := tr.advance(to); err != nil {
		log.Error("lot phase transition rejected", "error", err)
	}
}

// dispatchOffset measures how late the first request of the burst left
// relative to target.
func dispatchOffset(records []models.AttemptRecord, target time.Time) time.Duration {
	var first time.Time
	for _, r := range records {
		if first.IsZero() || r.DispatchedAt.Before(first) {
			first = r.DispatchedAt
		}
	}
	if first.IsZero() || first.Before(target) {
		return 0
	}
	return first.Sub(target)
}

// Coordinator races every lot of a batch concurrently on one session.
type Coordinator struct {
	orch   *Orchestrator
	clock  Clock
	logger *slog.Logger
}

func NewCoordinator(orch *Orchestrator) *Coordinator {
	return &Coordinator{orch: orch, clock: orch.clock, logger: orch.logger}
}

// Run races all lots and returns their results in input order. Lots never
// wait on each other. The session is closed once every lot has finished.
func (c *Coordinator) Run(ctx context.Context, sess *Session, lots []models.Lot) models.BatchResult {
	defer sess.Close()

	res := models.BatchResult{
		Lots:      make([]models.LotResult, len(lots)),
		StartedAt: c.clock.Now(),
	}
	var g errgroup.Group
	for i, lot := range lots {
		i, lot := i, lot
		g.Go(func() (err error) {
			// A panicking lot fails alone; its siblings keep racing.
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("lot %d: panic: %v", lot.ID, p)
					res.Lots[i] = models.LotResult{
						LotID:    lot.ID,
						TargetAt: lot.TargetAt,
						Outcome:  models.OutcomeAllFailed,
						Error:    err.Error(),
					}
				}
			}()
			// Each lot owns its own slot.
			res.Lots[i] = c.orch.RunLot(ctx, sess, lot)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("lot aborted", "error", err)
	}
	res.FinishedAt = c.clock.Now()

	c.logger.Info("batch finished",
		"lots", len(lots),
		"won", res.Won(),
		"elapsed_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	)
	return res
}
