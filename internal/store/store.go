package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/models"
)

var (
	// ErrNotFound is returned for unknown, evicted or expired batches.
	ErrNotFound = errors.New("store: batch not found")
	// ErrConflict is returned when a transition does not apply to the
	// batch's current status.
	ErrConflict = errors.New("store: batch status conflict")
)

// Store is the batch registry. Records live until Delete or until their
// ExpiresAt passes. Timestamps are epoch milliseconds.
type Store interface {
	PutBatch(ctx context.Context, b models.Batch) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	// ListBatches returns the most recently created batches first.
	ListBatches(ctx context.Context, limit int) ([]models.Batch, error)

	// MarkRunning claims a pending batch for workerID. It reports false when
	// the batch is no longer pending.
	MarkRunning(ctx context.Context, batchID, workerID string, nowMs int64) (bool, error)
	Complete(ctx context.Context, batchID string, result models.BatchResult, nowMs int64) error
	Fail(ctx context.Context, batchID, msg string, nowMs int64) error
	// RequestCancel flags a pending or running batch; the executor observes
	// the flag. Terminal batches yield ErrConflict.
	RequestCancel(ctx context.Context, batchID string, nowMs int64) error
	Delete(ctx context.Context, batchID string) error

	Close() error
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.SweepInterval), nil
	case "dynamo":
		return NewDynamoStore(ctx, cfg)
	case "redis":
		return NewRedisStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

func expired(b models.Batch, nowMs int64) bool {
	return b.ExpiresAt > 0 && nowMs/1000 >= b.ExpiresAt
}

func cancellable(b models.Batch) bool {
	return b.Status == models.StatusPending || b.Status == models.StatusRunning
}

func nowMs() int64 { return time.Now().UnixMilli() }
