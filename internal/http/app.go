package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SkyZonDev/scrappex/internal/metrics"
	"github.com/SkyZonDev/scrappex/internal/models"
)

// BatchService is what the handlers need from the batch runner.
type BatchService interface {
	Submit(ctx context.Context, lots []models.Lot) (string, error)
	Status(ctx context.Context, batchID string) (*models.Batch, error)
	List(ctx context.Context, limit int) ([]models.Batch, error)
	Cancel(ctx context.Context, batchID string) error
	Evict(ctx context.Context, batchID string) error
}

type App struct {
	Batches BatchService
	Metrics *metrics.Recorder
	Logger  *slog.Logger

	// Location reads zone-less target times; nil means time.Local.
	Location *time.Location
	// WatchInterval is how often /watch re-reads the batch.
	WatchInterval time.Duration

	upgrader websocket.Upgrader
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *App) watchInterval() time.Duration {
	if a.WatchInterval <= 0 {
		return 500 * time.Millisecond
	}
	return a.WatchInterval
}
