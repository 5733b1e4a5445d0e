package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/observer"
)

// TaskSaver сохраняет завершённую задачу (TaskRepo).
type TaskSaver interface {
	Save(ctx context.Context, task domain.Task) error
}

// TaskArchive — observer.Observer, записывающий завершённые задачи в архив.
type TaskArchive struct {
	observer.Nop

	saver   TaskSaver
	timeout time.Duration
	logger  *slog.Logger
}

// NewTaskArchive создаёт TaskArchive. timeout <= 0 означает 5s.
func NewTaskArchive(saver TaskSaver, timeout time.Duration, logger *slog.Logger) *TaskArchive {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskArchive{saver: saver, timeout: timeout, logger: logger}
}

// OnTaskCompleted сохраняет задачу. Ошибка записи только логируется.
func (a *TaskArchive) OnTaskCompleted(task domain.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.saver.Save(ctx, task); err != nil {
		a.logger.Warn("failed to archive task", "task_id", task.ID, "status", task.Status, "error", err)
	}
}
