package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Atelier/internal/domain"
)

// TaskRepo — архив завершённых генерационных задач.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// TaskFilter — фильтр для ListRecent.
type TaskFilter struct {
	Status   domain.TaskStatus
	WorkerID string
	Limit    int // default: 50
}

const taskColumns = `
	id, kind, required_capacity_units, priority, parameters, strategy, status,
	worker_id, result, error, created_at, dispatched_at, started_at, finished_at`

// Save сохраняет задачу в финальном статусе. Повторное сохранение перезаписывает запись.
func (r *TaskRepo) Save(ctx context.Context, task domain.Task) error {
	if !task.IsFinished() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidState, task.ID, task.Status)
	}

	params, err := json.Marshal(task.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	strategy, err := json.Marshal(task.Strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	var result []byte
	if task.Result != nil {
		if result, err = json.Marshal(task.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	query := `
		INSERT INTO generation_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			worker_id = EXCLUDED.worker_id,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			dispatched_at = EXCLUDED.dispatched_at,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.Kind,
		task.RequiredCapacityUnits,
		task.Priority,
		params,
		strategy,
		task.Status,
		nullString(task.LastWorkerID),
		result,
		nullString(task.Error),
		task.CreatedAt,
		task.DispatchedAt,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetByID возвращает задачу из архива.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE id = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return task, err
}

// ListRecent возвращает последние завершённые задачи, новые первыми.
func (r *TaskRepo) ListRecent(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR worker_id = $2)
		ORDER BY finished_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.WorkerID),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// --- Helpers ---

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		task                     domain.Task
		params, strategy, result []byte
		workerID, taskError      *string
	)

	err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.RequiredCapacityUnits,
		&task.Priority,
		&params,
		&strategy,
		&task.Status,
		&workerID,
		&result,
		&taskError,
		&task.CreatedAt,
		&task.DispatchedAt,
		&task.StartedAt,
		&task.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task, err
		}
		return task, fmt.Errorf("scan task: %w", err)
	}

	if params != nil {
		if err := json.Unmarshal(params, &task.Parameters); err != nil {
			return task, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if strategy != nil {
		if err := json.Unmarshal(strategy, &task.Strategy); err != nil {
			return task, fmt.Errorf("unmarshal strategy: %w", err)
		}
	}
	if result != nil {
		task.Result = &domain.Result{}
		if err := json.Unmarshal(result, task.Result); err != nil {
			return task, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if workerID != nil {
		task.LastWorkerID = *workerID
	}
	if taskError != nil {
		task.Error = *taskError
	}

	return task, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
