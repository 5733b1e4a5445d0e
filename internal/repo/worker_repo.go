package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Atelier/internal/domain"
)

// WorkerRepo — каталог известных воркеров.
//
// Каталог хранит только статическое описание (адрес, тип, ёмкость);
// состояние online/busy живёт в памяти Dispatcher'а.
type WorkerRepo struct {
	pool *pgxpool.Pool
}

// NewWorkerRepo создаёт WorkerRepo.
func NewWorkerRepo(pool *pgxpool.Pool) *WorkerRepo {
	return &WorkerRepo{pool: pool}
}

// ListEnabled возвращает включённые воркеры, отсортированные по ID.
func (r *WorkerRepo) ListEnabled(ctx context.Context) ([]domain.Worker, error) {
	query := `
		SELECT id, name, endpoint, kind, total_capacity_units
		FROM workers
		WHERE enabled
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.ID, &w.Name, &w.Endpoint, &w.Kind, &w.TotalCapacityUnits); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// Upsert добавляет воркер в каталог или обновляет его описание и включает.
func (r *WorkerRepo) Upsert(ctx context.Context, w domain.Worker) error {
	query := `
		INSERT INTO workers (id, name, endpoint, kind, total_capacity_units, enabled)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			endpoint = EXCLUDED.endpoint,
			kind = EXCLUDED.kind,
			total_capacity_units = EXCLUDED.total_capacity_units,
			enabled = TRUE,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, w.ID, w.Name, w.Endpoint, w.Kind, w.TotalCapacityUnits)
	if err != nil {
		return fmt.Errorf("upsert worker %s: %w", w.ID, err)
	}
	return nil
}

// Disable выключает воркер: при следующем старте он не будет зарегистрирован.
func (r *WorkerRepo) Disable(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE workers SET enabled = FALSE, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("disable worker %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
