package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Atelier/internal/dispatcher"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/repo"
)

// SubmitTask ставит задачу генерации в очередь.
// POST /api/v1/tasks
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.orch.Submit(r.Context(), dispatcher.Request{
		Kind:                  req.Kind,
		RequiredCapacityUnits: req.RequiredCapacityUnits,
		Priority:              req.Priority,
		Parameters:            req.Parameters,
		Strategy:              req.Strategy,
	})
	if HandleError(w, h.logger, err) {
		return
	}

	Accepted(w, TaskFromDomain(task))
}

// ListTasks возвращает задачи.
// GET /api/v1/tasks?status=...&worker_id=...&limit=...&source=archive
//
// По умолчанию — задачи в памяти Dispatcher'а (активные и недавняя история),
// source=archive — архив завершённых задач.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := domain.TaskStatus(q.Get("status"))
	if status != "" && !status.IsValid() {
		BadRequest(w, "invalid status")
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	var (
		tasks []domain.Task
		err   error
	)
	switch q.Get("source") {
	case "", "live":
		tasks, err = h.orch.Tasks(r.Context(), dispatcher.TaskFilter{
			Status:   status,
			WorkerID: q.Get("worker_id"),
			Limit:    limit,
		})
	case "archive":
		if h.archive == nil {
			Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "task archive is not configured")
			return
		}
		tasks, err = h.archive.ListRecent(r.Context(), repo.TaskFilter{
			Status:   status,
			WorkerID: q.Get("worker_id"),
			Limit:    limit,
		})
	default:
		BadRequest(w, "invalid source")
		return
	}
	if HandleError(w, h.logger, err) {
		return
	}

	List(w, tasksFromDomain(tasks), len(tasks))
}

// GetTask возвращает задачу по ID.
// GET /api/v1/tasks/{id}
//
// Задача, вытесненная из истории Dispatcher'а, ищется в архиве.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.orch.Task(r.Context(), id)
	if errors.Is(err, dispatcher.ErrTaskNotFound) && h.archive != nil {
		task, err = h.archive.GetByID(r.Context(), id)
		if errors.Is(err, repo.ErrNotFound) {
			err = dispatcher.ErrTaskNotFound
		}
	}
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, TaskFromDomain(task))
}

// CancelTask отменяет задачу.
// POST /api/v1/tasks/{id}/cancel
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.orch.Cancel(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, TaskFromDomain(task))
}
