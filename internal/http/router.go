package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

func RegisterRoutes(r chi.Router, app *App) {
	app.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	r.Get("/healthz", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(app.observe)
		r.Post("/batches", app.submitBatchHandler)
		r.Get("/batches", app.listBatchesHandler)
		r.Get("/batches/{batch_id}", app.batchStatusHandler)
		r.Delete("/batches/{batch_id}", app.evictBatchHandler)
		r.Post("/batches/{batch_id}/cancel", app.cancelBatchHandler)
		r.Get("/batches/{batch_id}/watch", app.watchBatchHandler)

		// Routes kept for existing clients.
		r.Post("/schedule-purchases", app.submitBatchHandler)
		r.Get("/purchase-status/{batch_id}", app.batchStatusHandler)
	})
}

// observe records request metrics under the matched route pattern.
func (a *App) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.Metrics.ObserveRequest(r.Method, route, status, time.Since(start))
	})
}
