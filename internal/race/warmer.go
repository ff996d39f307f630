package race

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SkyZonDev/scrappex/internal/nettrace"
)

// Warmer issues one cheap request so DNS, handshake and a keep-alive slot are
// ready before the burst.
type Warmer struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

func NewWarmer(cfg Config, logger *slog.Logger) *Warmer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{path: cfg.WarmupPath, timeout: cfg.WarmupTimeout, logger: logger}
}

// Warm performs the request and discards the body. Any status code counts as
// warm; only transport failures are reported, wrapped in ErrWarmup.
func (w *Warmer) Warm(ctx context.Context, sess *Session, lotID int64) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ctx, timings := nettrace.WithTimings(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.URL(w.path), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWarmup, err)
	}
	started := time.Now()
	resp, err := sess.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWarmup, err)
	}
	defer resp.Body.Close()
	// Drain so the connection goes back to the idle pool.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	td := timings.Snapshot()
	w.logger.Debug("connection warmed",
		"lot", lotID,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(started).Milliseconds(),
		"dns_ms", td.DNS.Milliseconds(),
		"connect_ms", td.Connect.Milliseconds(),
		"tls_ms", td.TLS.Milliseconds(),
		"reused", td.ConnReused,
	)
	return nil
}
