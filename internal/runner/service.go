package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/store"
)

// ErrInvalidBatch wraps every submit validation failure.
var ErrInvalidBatch = errors.New("invalid batch")

const defaultTTL = 24 * time.Hour

// Service is the batch-facing API: submit, inspect, cancel and evict.
type Service struct {
	store    store.Store
	launcher Launcher
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(st store.Store, launcher Launcher, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, launcher: launcher, ttl: ttl, logger: logger, now: time.Now}
}

// Submit stores a pending batch and launches it. It returns as soon as the
// batch is accepted.
func (s *Service) Submit(ctx context.Context, lots []models.Lot) (string, error) {
	if err := validateLots(lots); err != nil {
		return "", err
	}

	now := s.now()
	b := models.Batch{
		BatchID:   uuid.NewString(),
		Lots:      append([]models.Lot(nil), lots...),
		Status:    models.StatusPending,
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
	// Keep the record for ttl after the last lot has raced.
	last := b.Lots[0].TargetAt
	for _, l := range b.Lots {
		if l.TargetAt.After(last) {
			last = l.TargetAt
		}
	}
	if last.Before(now) {
		last = now
	}
	b.ExpiresAt = last.Add(s.ttl).Unix()

	if err := s.store.PutBatch(ctx, b); err != nil {
		return "", fmt.Errorf("store batch: %w", err)
	}
	if err := s.launcher.Launch(ctx, b); err != nil {
		msg := fmt.Sprintf("launch failed: %v", err)
		if ferr := s.store.Fail(context.WithoutCancel(ctx), b.BatchID, msg, s.now().UnixMilli()); ferr != nil {
			s.logger.Error("could not mark unlaunched batch", "batch_id", b.BatchID, "error", ferr)
		}
		return "", fmt.Errorf("launch batch: %w", err)
	}

	s.logger.Info("batch submitted", "batch_id", b.BatchID, "lots", len(b.Lots), "earliest", b.EarliestTarget())
	return b.BatchID, nil
}

func (s *Service) Status(ctx context.Context, batchID string) (*models.Batch, error) {
	return s.store.GetBatch(ctx, batchID)
}

func (s *Service) List(ctx context.Context, limit int) ([]models.Batch, error) {
	return s.store.ListBatches(ctx, limit)
}

// Cancel stops lots that have not dispatched yet. Attempts already on the
// wire still complete.
func (s *Service) Cancel(ctx context.Context, batchID string) error {
	return s.store.RequestCancel(ctx, batchID, s.now().UnixMilli())
}

// Evict removes the record. A running batch notices and cancels itself.
func (s *Service) Evict(ctx context.Context, batchID string) error {
	return s.store.Delete(ctx, batchID)
}

func validateLots(lots []models.Lot) error {
	if len(lots) == 0 {
		return fmt.Errorf("%w: no lots", ErrInvalidBatch)
	}
	seen := make(map[int64]struct{}, len(lots))
	for i, l := range lots {
		if l.ID <= 0 {
			return fmt.Errorf("%w: lot %d has invalid id %d", ErrInvalidBatch, i, l.ID)
		}
		if l.TargetAt.IsZero() {
			return fmt.Errorf("%w: lot %d has no target time", ErrInvalidBatch, l.ID)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("%w: lot %d listed twice", ErrInvalidBatch, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}
