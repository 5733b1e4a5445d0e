package domain

// TaskStatus — статус генерационной задачи.
//
// Жизненный цикл:
//
//	QUEUED → DISPATCHED → RUNNING → SUCCEEDED
//	                              ↘ FAILED
//	(из QUEUED, DISPATCHED, RUNNING) → CANCELLED
type TaskStatus string

const (
	// TaskStatusQueued — задача в очереди, воркер ещё не выбран.
	TaskStatusQueued TaskStatus = "QUEUED"

	// TaskStatusDispatched — воркер выбран и занят, адаптер ещё не подтвердил старт.
	TaskStatusDispatched TaskStatus = "DISPATCHED"

	// TaskStatusRunning — бэкенд выполняет генерацию.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — генерация завершена, результат сохранён.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — генерация завершилась ошибкой.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusCancelled — задача отменена вызывающей стороной.
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive возвращает true, если задача удерживает воркер.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusDispatched || s == TaskStatusRunning
}

// IsValid проверяет, что статус известен.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusDispatched, TaskStatusRunning,
		TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// AllTaskStatuses — все статусы в порядке жизненного цикла.
var AllTaskStatuses = []TaskStatus{
	TaskStatusQueued,
	TaskStatusDispatched,
	TaskStatusRunning,
	TaskStatusSucceeded,
	TaskStatusFailed,
	TaskStatusCancelled,
}

// canTransition описывает допустимые переходы.
func canTransition(from, to TaskStatus) bool {
	switch to {
	case TaskStatusDispatched:
		return from == TaskStatusQueued
	case TaskStatusRunning:
		return from == TaskStatusDispatched
	case TaskStatusSucceeded:
		return from == TaskStatusRunning
	case TaskStatusFailed:
		return from == TaskStatusDispatched || from == TaskStatusRunning
	case TaskStatusCancelled:
		return !from.IsTerminal()
	default:
		return false
	}
}
