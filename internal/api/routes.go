package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(h.metrics),
	)

	mux.HandleFunc("GET /healthz", h.Healthz)

	// Tasks
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.SubmitTask)))
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("POST /api/v1/tasks/{id}/cancel", chain(http.HandlerFunc(h.CancelTask)))

	// Workers
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))
	mux.Handle("POST /api/v1/workers", chain(http.HandlerFunc(h.RegisterWorker)))
	mux.Handle("GET /api/v1/workers/{id}", chain(http.HandlerFunc(h.GetWorker)))
	mux.Handle("DELETE /api/v1/workers/{id}", chain(http.HandlerFunc(h.UnregisterWorker)))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))

	// Events (SSE)
	if h.events != nil {
		mux.Handle("GET /api/v1/events", Recovery(h.logger)(h.events))
	}
}
