package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/SkyZonDev/scrappex/internal/store"
)

// watchBatchHandler pushes the batch as JSON whenever it changes and closes
// the socket once the batch is terminal or gone.
func (a *App) watchBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	b, err := a.Batches.Status(r.Context(), batchID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "message": "unknown batch id"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger().Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(a.watchInterval())
	defer ticker.Stop()

	var lastUpdated int64 = -1
	var lastStatus string
	for {
		if b.UpdatedAt != lastUpdated || string(b.Status) != lastStatus {
			payload, err := json.Marshal(toStatusResponse(b))
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				a.logger().Warn("websocket send failed", "batch_id", batchID, "error", err)
				return
			}
			lastUpdated, lastStatus = b.UpdatedAt, string(b.Status)
		}
		if b.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(b.Status)),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		next, err := a.Batches.Status(r.Context(), batchID)
		if errors.Is(err, store.ErrNotFound) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "evicted"),
				time.Now().Add(time.Second))
			return
		}
		if err != nil {
			a.logger().Warn("watch reload failed", "batch_id", batchID, "error", err)
			continue
		}
		b = next
	}
}
