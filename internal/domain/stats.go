package domain

import "time"

// TaskEventType — тип события жизненного цикла задачи.
type TaskEventType string

const (
	TaskEventQueued     TaskEventType = "queued"
	TaskEventDispatched TaskEventType = "dispatched"
	TaskEventRunning    TaskEventType = "running"
	TaskEventSucceeded  TaskEventType = "succeeded"
	TaskEventFailed     TaskEventType = "failed"
	TaskEventCancelled  TaskEventType = "cancelled"
)

// TaskEvent — событие жизненного цикла задачи, публикуемое Dispatcher'ом.
type TaskEvent struct {
	Type TaskEventType `json:"type"`
	Task Task          `json:"task"`
	At   time.Time     `json:"at"`
}

// EventTypeFor возвращает тип события для статуса задачи.
func EventTypeFor(status TaskStatus) (TaskEventType, bool) {
	switch status {
	case TaskStatusQueued:
		return TaskEventQueued, true
	case TaskStatusDispatched:
		return TaskEventDispatched, true
	case TaskStatusRunning:
		return TaskEventRunning, true
	case TaskStatusSucceeded:
		return TaskEventSucceeded, true
	case TaskStatusFailed:
		return TaskEventFailed, true
	case TaskStatusCancelled:
		return TaskEventCancelled, true
	default:
		return "", false
	}
}

// WorkerUtilization — доля времени окна, когда воркер был занят.
type WorkerUtilization struct {
	WorkerID    string  `json:"worker_id"`
	Utilization float64 `json:"utilization"`
	Tasks       int     `json:"tasks"`
}

// StatsSnapshot — производная сводка пропускной способности.
//
// Не сохраняется: пересчитывается из истории задач за окно.
type StatsSnapshot struct {
	// Counts — количество задач окна по последнему известному статусу.
	Counts map[TaskStatus]int `json:"counts"`

	// TasksPerSecond — завершённые задачи в секунду за наблюдаемый интервал.
	TasksPerSecond float64 `json:"tasks_per_second"`

	// SuccessRate — succeeded / (succeeded + failed); 1.0 без ошибок.
	SuccessRate float64 `json:"success_rate"`

	// MeanGenerationTime — среднее FinishedAt - StartedAt успешных задач.
	MeanGenerationTime time.Duration `json:"mean_generation_time"`

	// Workers — загрузка по воркерам, отсортирована по WorkerID.
	Workers []WorkerUtilization `json:"workers"`

	// Window — наблюдаемый интервал, за который посчитана сводка.
	Window time.Duration `json:"window"`

	// DroppedEvents — сколько событий потеряно из-за переполнения буфера.
	DroppedEvents int64 `json:"dropped_events"`

	TakenAt time.Time `json:"taken_at"`
}
