package api

import (
	"net/http"
)

// GetStats возвращает сводку пропускной способности.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "stats are not configured")
		return
	}

	snapshot, err := h.stats.Snapshot(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}

	queued, err := h.orch.QueueLen(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, StatsFromDomain(snapshot, queued))
}

// Healthz отвечает 200, пока Dispatcher обрабатывает команды.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.orch.QueueLen(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
