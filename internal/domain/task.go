package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition — недопустимый переход статуса задачи.
var ErrInvalidTransition = errors.New("invalid task status transition")

// TaskKind — тип генерации.
type TaskKind string

const (
	TaskKindImage TaskKind = "image"
	TaskKindVideo TaskKind = "video"
)

// IsValid проверяет, что тип генерации поддерживается.
func (k TaskKind) IsValid() bool {
	return k == TaskKindImage || k == TaskKindVideo
}

// Result — результат генерации.
type Result struct {
	// Artifacts — ссылки на сгенерированные изображения или видео
	// (путь, URL или base64, в зависимости от бэкенда).
	Artifacts []string `json:"artifacts"`

	// GenerationSeconds — время генерации, сообщённое бэкендом.
	GenerationSeconds float64 `json:"generation_seconds"`
}

// Task — одна генерационная задача.
//
// Task принадлежит Dispatcher'у на всё время жизни. Наружу отдаются
// только копии (Snapshot).
type Task struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Kind — image или video.
	Kind TaskKind `json:"kind"`

	// RequiredCapacityUnits — сколько единиц ёмкости (ГБ VRAM) нужно задаче.
	RequiredCapacityUnits float64 `json:"required_capacity_units"`

	// Priority — уровень приоритета; nil означает уровень 0.
	// Больше — раньше.
	Priority *int `json:"priority,omitempty"`

	// Parameters — непрозрачные параметры генерации (prompt, width, height, steps, seed...).
	Parameters map[string]any `json:"parameters,omitempty"`

	// Strategy — стратегия распределения для этой задачи.
	Strategy StrategyConfig `json:"strategy"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// AssignedWorkerID — воркер, выполняющий задачу.
	// Заполнен тогда и только тогда, когда статус DISPATCHED или RUNNING.
	AssignedWorkerID string `json:"assigned_worker_id,omitempty"`

	// LastWorkerID — последний воркер, которому назначалась задача.
	// Сохраняется после завершения для диагностики и статистики.
	LastWorkerID string `json:"last_worker_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	// Result — результат (только для SUCCEEDED).
	Result *Result `json:"result,omitempty"`

	// Error — текст ошибки (для FAILED и CANCELLED).
	Error string `json:"error,omitempty"`
}

// NewTask создаёт задачу в статусе QUEUED.
func NewTask(kind TaskKind, units float64, priority *int, params map[string]any, strategy StrategyConfig) *Task {
	var p *int
	if priority != nil {
		v := *priority
		p = &v
	}
	return &Task{
		ID:                    uuid.New(),
		Kind:                  kind,
		RequiredCapacityUnits: units,
		Priority:              p,
		Parameters:            maps.Clone(params),
		Strategy:              strategy.Clone(),
		Status:                TaskStatusQueued,
		CreatedAt:             time.Now(),
	}
}

// Tier возвращает уровень приоритета (0, если не задан).
func (t *Task) Tier() int {
	if t.Priority == nil {
		return 0
	}
	return *t.Priority
}

// IsFinished возвращает true, если задача в финальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// GenerationTime возвращает FinishedAt - StartedAt.
func (t *Task) GenerationTime() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkDispatched назначает задачу воркеру.
func (t *Task) MarkDispatched(workerID string) error {
	if err := t.transition(TaskStatusDispatched); err != nil {
		return err
	}
	now := time.Now()
	t.AssignedWorkerID = workerID
	t.LastWorkerID = workerID
	t.DispatchedAt = &now
	return nil
}

// MarkRunning фиксирует подтверждение старта от адаптера.
func (t *Task) MarkRunning() error {
	if err := t.transition(TaskStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	t.StartedAt = &now
	return nil
}

// MarkSucceeded переводит задачу в SUCCEEDED с результатом.
func (t *Task) MarkSucceeded(result Result) error {
	if err := t.transition(TaskStatusSucceeded); err != nil {
		return err
	}
	t.finish()
	t.Result = &result
	return nil
}

// MarkFailed переводит задачу в FAILED с ошибкой.
func (t *Task) MarkFailed(errMsg string) error {
	if err := t.transition(TaskStatusFailed); err != nil {
		return err
	}
	t.finish()
	t.Error = errMsg
	return nil
}

// MarkCancelled переводит задачу в CANCELLED.
func (t *Task) MarkCancelled(reason string) error {
	if err := t.transition(TaskStatusCancelled); err != nil {
		return err
	}
	t.finish()
	t.Error = reason
	return nil
}

func (t *Task) transition(to TaskStatus) error {
	if !canTransition(t.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

func (t *Task) finish() {
	now := time.Now()
	t.FinishedAt = &now
	t.AssignedWorkerID = ""
}

// Snapshot возвращает независимую копию задачи.
func (t *Task) Snapshot() Task {
	c := *t
	c.Parameters = maps.Clone(t.Parameters)
	c.Strategy = t.Strategy.Clone()
	c.Priority = clonePtr(t.Priority)
	c.DispatchedAt = clonePtr(t.DispatchedAt)
	c.StartedAt = clonePtr(t.StartedAt)
	c.FinishedAt = clonePtr(t.FinishedAt)
	if t.Result != nil {
		r := *t.Result
		r.Artifacts = slices.Clone(t.Result.Artifacts)
		c.Result = &r
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
