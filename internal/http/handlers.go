package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/runner"
	"github.com/SkyZonDev/scrappex/internal/store"
)

const maxSubmitBody = 1 << 20

// SubmitBatchRequest accepts either {"lots":[{"id","target_at"}]} or the
// parallel-array shape {"lots":[ids], "purchase_times":[times]}.
type SubmitBatchRequest struct {
	Lots          []json.RawMessage `json:"lots"`
	PurchaseTimes []string          `json:"purchase_times"`
}

type lotRequest struct {
	ID       int64  `json:"id"`
	TargetAt string `json:"target_at"`
}

type SubmitBatchResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
	// RequestID repeats BatchID for clients of /schedule-purchases.
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

type BatchStatusResponse struct {
	BatchID         string              `json:"batch_id"`
	Status          models.BatchStatus  `json:"status"`
	Lots            []models.Lot        `json:"lots"`
	Result          *models.BatchResult `json:"result"`
	Error           string              `json:"error,omitempty"`
	CancelRequested bool                `json:"cancel_requested,omitempty"`
	CreatedAt       int64               `json:"created_at"`
	UpdatedAt       int64               `json:"updated_at"`
}

func toStatusResponse(b *models.Batch) BatchStatusResponse {
	return BatchStatusResponse{
		BatchID:         b.BatchID,
		Status:          b.Status,
		Lots:            b.Lots,
		Result:          b.Result,
		Error:           b.Error,
		CancelRequested: b.CancelRequested,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

func (a *App) submitBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	lots, err := a.parseLots(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batchID, err := a.Batches.Submit(r.Context(), lots)
	if errors.Is(err, runner.ErrInvalidBatch) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.logger().Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to schedule batch")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitBatchResponse{
		Status:    "success",
		BatchID:   batchID,
		RequestID: batchID,
		Message:   fmt.Sprintf("%d lots scheduled", len(lots)),
	})
}

func (a *App) parseLots(req SubmitBatchRequest) ([]models.Lot, error) {
	if len(req.Lots) == 0 {
		return nil, errors.New("lots is required")
	}
	if len(req.PurchaseTimes) > 0 {
		if len(req.PurchaseTimes) != len(req.Lots) {
			return nil, fmt.Errorf("got %d lots but %d purchase_times", len(req.Lots), len(req.PurchaseTimes))
		}
		lots := make([]models.Lot, len(req.Lots))
		for i, raw := range req.Lots {
			if err := json.Unmarshal(raw, &lots[i].ID); err != nil {
				return nil, fmt.Errorf("lots[%d]: expected an integer id", i)
			}
			t, err := models.ParseTargetTime(req.PurchaseTimes[i], a.Location)
			if err != nil {
				return nil, fmt.Errorf("purchase_times[%d]: %w", i, err)
			}
			lots[i].TargetAt = t
		}
		return lots, nil
	}

	lots := make([]models.Lot, len(req.Lots))
	for i, raw := range req.Lots {
		var lr lotRequest
		if err := json.Unmarshal(raw, &lr); err != nil {
			return nil, fmt.Errorf("lots[%d]: expected {id, target_at}", i)
		}
		t, err := models.ParseTargetTime(lr.TargetAt, a.Location)
		if err != nil {
			return nil, fmt.Errorf("lots[%d]: %w", i, err)
		}
		lots[i] = models.Lot{ID: lr.ID, TargetAt: t}
	}
	return lots, nil
}

func (a *App) batchStatusHandler(w http.ResponseWriter, r *http.Request) {
	b, err := a.Batches.Status(r.Context(), chi.URLParam(r, "batch_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "message": "unknown batch id"})
		return
	}
	if err != nil {
		a.logger().Error("status lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(b))
}

func (a *App) listBatchesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	batches, err := a.Batches.List(r.Context(), limit)
	if err != nil {
		a.logger().Error("list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load batches")
		return
	}
	items := make([]BatchStatusResponse, len(batches))
	for i := range batches {
		items[i] = toStatusResponse(&batches[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) cancelBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	switch err := a.Batches.Cancel(r.Context(), batchID); {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "message": "unknown batch id"})
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "batch already finished")
	case err != nil:
		a.logger().Error("cancel failed", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel batch")
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "batch_id": batchID})
	}
}

func (a *App) evictBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	switch err := a.Batches.Evict(r.Context(), batchID); {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "message": "unknown batch id"})
	case err != nil:
		a.logger().Error("evict failed", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to evict batch")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
