package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/repo"
)

// ListWorkers возвращает воркеры.
// GET /api/v1/workers?kind=...&online=true&idle=true
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.WorkerFilter{Kind: domain.WorkerKind(q.Get("kind"))}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		BadRequest(w, "invalid kind")
		return
	}

	var err error
	if filter.OnlineOnly, err = boolParam(q.Get("online")); err != nil {
		BadRequest(w, "invalid online flag")
		return
	}
	if filter.IdleOnly, err = boolParam(q.Get("idle")); err != nil {
		BadRequest(w, "invalid idle flag")
		return
	}

	workers, err := h.orch.Workers(r.Context(), filter)
	if HandleError(w, h.logger, err) {
		return
	}

	List(w, workersFromDomain(workers), len(workers))
}

// RegisterWorker регистрирует воркер и сразу опрашивает его.
// POST /api/v1/workers
func (h *Handler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req RegisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	worker, err := h.orch.Register(r.Context(), domain.Worker{
		ID:                 req.ID,
		Name:               req.Name,
		Endpoint:           req.Endpoint,
		Kind:               req.Kind,
		TotalCapacityUnits: req.TotalCapacityUnits,
	})
	if HandleError(w, h.logger, err) {
		return
	}

	if h.catalog != nil {
		if err := h.catalog.Upsert(r.Context(), worker); err != nil {
			h.logger.Warn("failed to persist worker", "worker_id", worker.ID, "error", err)
		}
	}

	if h.prober != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.probeTimeout)
		h.prober.ProbeNow(ctx, worker)
		cancel()

		if probed, err := h.orch.Worker(r.Context(), worker.ID); err == nil {
			worker = probed
		}
	}

	Created(w, WorkerFromDomain(worker))
}

// GetWorker возвращает воркер по ID.
// GET /api/v1/workers/{id}
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.orch.Worker(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, WorkerFromDomain(worker))
}

// UnregisterWorker удаляет воркер. Задача, которую он держал, завершится ошибкой.
// DELETE /api/v1/workers/{id}
func (h *Handler) UnregisterWorker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	worker, err := h.orch.Unregister(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	if h.catalog != nil {
		if err := h.catalog.Disable(r.Context(), id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			h.logger.Warn("failed to disable worker in catalog", "worker_id", id, "error", err)
		}
	}

	Success(w, WorkerFromDomain(worker))
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
