package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Atelier/internal/domain"
)

// Task DTOs

// SubmitTaskRequest — запрос на генерацию.
type SubmitTaskRequest struct {
	Kind                  domain.TaskKind       `json:"kind"`
	RequiredCapacityUnits float64               `json:"required_capacity_units,omitempty"`
	Priority              *int                  `json:"priority,omitempty"`
	Parameters            map[string]any        `json:"parameters,omitempty"`
	Strategy              domain.StrategyConfig `json:"strategy"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID                    uuid.UUID             `json:"id"`
	Kind                  domain.TaskKind       `json:"kind"`
	Status                domain.TaskStatus     `json:"status"`
	RequiredCapacityUnits float64               `json:"required_capacity_units"`
	Priority              int                   `json:"priority"`
	Strategy              domain.StrategyConfig `json:"strategy"`
	Parameters            map[string]any        `json:"parameters,omitempty"`
	WorkerID              string                `json:"worker_id,omitempty"`
	Result                *domain.Result        `json:"result,omitempty"`
	Error                 string                `json:"error,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	DispatchedAt          *time.Time            `json:"dispatched_at,omitempty"`
	StartedAt             *time.Time            `json:"started_at,omitempty"`
	FinishedAt            *time.Time            `json:"finished_at,omitempty"`
	GenerationSeconds     float64               `json:"generation_seconds,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	workerID := t.AssignedWorkerID
	if workerID == "" {
		workerID = t.LastWorkerID
	}

	return TaskResponse{
		ID:                    t.ID,
		Kind:                  t.Kind,
		Status:                t.Status,
		RequiredCapacityUnits: t.RequiredCapacityUnits,
		Priority:              t.Tier(),
		Strategy:              t.Strategy,
		Parameters:            t.Parameters,
		WorkerID:              workerID,
		Result:                t.Result,
		Error:                 t.Error,
		CreatedAt:             t.CreatedAt,
		DispatchedAt:          t.DispatchedAt,
		StartedAt:             t.StartedAt,
		FinishedAt:            t.FinishedAt,
		GenerationSeconds:     t.GenerationTime().Seconds(),
	}
}

func tasksFromDomain(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = TaskFromDomain(t)
	}
	return out
}

// Worker DTOs

// RegisterWorkerRequest — запрос на регистрацию воркера.
type RegisterWorkerRequest struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name,omitempty"`
	Endpoint           string            `json:"endpoint"`
	Kind               domain.WorkerKind `json:"kind"`
	TotalCapacityUnits float64           `json:"total_capacity_units,omitempty"`
}

// WorkerResponse — ответ с воркером.
type WorkerResponse struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Endpoint           string            `json:"endpoint"`
	Kind               domain.WorkerKind `json:"kind"`
	Online             bool              `json:"online"`
	Busy               bool              `json:"busy"`
	TotalCapacityUnits float64           `json:"total_capacity_units"`
	FreeCapacityUnits  float64           `json:"free_capacity_units"`
	AvailableUnits     float64           `json:"available_units"`
	LastHeartbeatAt    *time.Time        `json:"last_heartbeat_at,omitempty"`
}

// WorkerFromDomain конвертирует domain.Worker в WorkerResponse.
func WorkerFromDomain(w domain.Worker) WorkerResponse {
	resp := WorkerResponse{
		ID:                 w.ID,
		Name:               w.Name,
		Endpoint:           w.Endpoint,
		Kind:               w.Kind,
		Online:             w.Online,
		Busy:               w.Busy,
		TotalCapacityUnits: w.TotalCapacityUnits,
		FreeCapacityUnits:  w.FreeCapacityUnits,
		AvailableUnits:     w.AvailableUnits(),
	}
	if !w.LastHeartbeatAt.IsZero() {
		at := w.LastHeartbeatAt
		resp.LastHeartbeatAt = &at
	}
	return resp
}

func workersFromDomain(workers []domain.Worker) []WorkerResponse {
	out := make([]WorkerResponse, len(workers))
	for i, w := range workers {
		out[i] = WorkerFromDomain(w)
	}
	return out
}

// Stats DTOs

// StatsResponse — сводка пропускной способности.
type StatsResponse struct {
	Counts                map[domain.TaskStatus]int  `json:"counts"`
	Queued                int                        `json:"queue_length"`
	TasksPerSecond        float64                    `json:"tasks_per_second"`
	SuccessRate           float64                    `json:"success_rate"`
	MeanGenerationSeconds float64                    `json:"mean_generation_seconds"`
	WindowSeconds         float64                    `json:"window_seconds"`
	Workers               []domain.WorkerUtilization `json:"workers"`
	DroppedEvents         int64                      `json:"dropped_events"`
	TakenAt               time.Time                  `json:"taken_at"`
}

// StatsFromDomain конвертирует domain.StatsSnapshot в StatsResponse.
func StatsFromDomain(s domain.StatsSnapshot, queued int) StatsResponse {
	workers := s.Workers
	if workers == nil {
		workers = []domain.WorkerUtilization{}
	}
	return StatsResponse{
		Counts:                s.Counts,
		Queued:                queued,
		TasksPerSecond:        s.TasksPerSecond,
		SuccessRate:           s.SuccessRate,
		MeanGenerationSeconds: s.MeanGenerationTime.Seconds(),
		WindowSeconds:         s.Window.Seconds(),
		Workers:               workers,
		DroppedEvents:         s.DroppedEvents,
		TakenAt:               s.TakenAt,
	}
}
