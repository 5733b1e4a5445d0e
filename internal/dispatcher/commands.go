package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/registry"
	"github.com/shaiso/Atelier/internal/transport"
)

// Request — запрос на генерацию.
type Request struct {
	Kind domain.TaskKind `json:"kind"`

	// RequiredCapacityUnits — требуемая ёмкость; 0 означает "оценить".
	RequiredCapacityUnits float64 `json:"required_capacity_units,omitempty"`

	Priority   *int           `json:"priority,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// Strategy — стратегия для задачи; пустая означает стратегию сессии.
	Strategy domain.StrategyConfig `json:"strategy,omitempty"`
}

// TaskFilter — фильтр для списка задач.
type TaskFilter struct {
	Status   domain.TaskStatus // пусто — любой
	WorkerID string            // по LastWorkerID
	Limit    int               // 0 — без ограничения (с конца списка)
}

func (f TaskFilter) match(t *domain.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.WorkerID != "" && t.LastWorkerID != f.WorkerID {
		return false
	}
	return true
}

// Submit принимает запрос и ставит задачу в очередь.
//
// Возвращает снимок задачи в статусе QUEUED. Не ждёт назначения воркера.
// ErrAdmissionRejected — ни один известный воркер не вместит задачу.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (domain.Task, error) {
	// 1. Валидация вне горутины-владельца
	if !req.Kind.IsValid() {
		return domain.Task{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	if req.RequiredCapacityUnits < 0 {
		return domain.Task{}, fmt.Errorf("%w: negative required capacity", ErrInvalidRequest)
	}
	if !req.Strategy.IsZero() {
		if err := req.Strategy.Validate(); err != nil {
			return domain.Task{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	// 2. Оценка ёмкости
	units := req.RequiredCapacityUnits
	if units == 0 {
		estimated, err := d.estimator.Estimate(req.Kind, req.Parameters)
		if err != nil {
			return domain.Task{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if estimated <= 0 {
			return domain.Task{}, fmt.Errorf("%w: capacity estimate must be positive", ErrInvalidRequest)
		}
		units = estimated
	}

	var (
		snapshot domain.Task
		opErr    error
	)
	err := d.call(ctx, func() {
		snapshot, opErr = d.submit(req, units)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return snapshot, opErr
}

func (d *Dispatcher) submit(req Request, units float64) (domain.Task, error) {
	// Admission control: по полной ёмкости всех известных воркеров
	if d.registry.Len() == 0 {
		return domain.Task{}, fmt.Errorf("%w: no workers registered", ErrAdmissionRejected)
	}
	if !d.registry.CanEverFit(units) {
		return domain.Task{}, fmt.Errorf("%w: task requires %.1f units, largest worker has %.1f",
			ErrAdmissionRejected, units, d.registry.MaxTotalCapacity())
	}

	task := domain.NewTask(req.Kind, units, req.Priority, req.Parameters, req.Strategy.Or(d.defaultStrategy))
	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)
	d.queue.Push(task.Tier(), task.ID)

	d.logger.Debug("task queued",
		"task_id", task.ID,
		"kind", task.Kind,
		"units", units,
		"priority", task.Tier(),
		"strategy", task.Strategy.Kind,
	)

	snapshot := task.Snapshot()
	d.emit(task)
	d.schedule()
	return snapshot, nil
}

// Cancel отменяет задачу.
//
// QUEUED — сразу CANCELLED. DISPATCHED/RUNNING — сразу CANCELLED,
// бэкенду отправляется abort, воркер освобождается после подтверждения
// или по истечении grace-периода.
func (d *Dispatcher) Cancel(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	var (
		snapshot domain.Task
		opErr    error
	)
	err := d.call(ctx, func() {
		snapshot, opErr = d.cancel(id)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return snapshot, opErr
}

// Task возвращает снимок задачи.
func (d *Dispatcher) Task(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	var (
		snapshot domain.Task
		found    bool
	)
	err := d.call(ctx, func() {
		if task, ok := d.tasks[id]; ok {
			snapshot, found = task.Snapshot(), true
		}
	})
	if err != nil {
		return domain.Task{}, err
	}
	if !found {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return snapshot, nil
}

// Tasks возвращает снимки задач в порядке поступления.
// При Limit > 0 возвращаются последние Limit подходящих задач.
func (d *Dispatcher) Tasks(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	var result []domain.Task
	err := d.call(ctx, func() {
		result = make([]domain.Task, 0, len(d.order))
		for _, id := range d.order {
			if task := d.tasks[id]; task != nil && filter.match(task) {
				result = append(result, task.Snapshot())
			}
		}
		if filter.Limit > 0 && len(result) > filter.Limit {
			result = result[len(result)-filter.Limit:]
		}
	})
	return result, err
}

// Register добавляет воркер в реестр.
func (d *Dispatcher) Register(ctx context.Context, w domain.Worker) (domain.Worker, error) {
	var (
		snapshot domain.Worker
		opErr    error
	)
	err := d.call(ctx, func() {
		if !d.adapters.Has(w.Kind) && w.Kind.IsValid() {
			opErr = fmt.Errorf("%w: %s", transport.ErrNoAdapter, w.Kind)
			return
		}
		snapshot, opErr = d.registry.Register(w)
		if opErr != nil {
			return
		}
		d.logger.Info("worker registered",
			"worker_id", snapshot.ID,
			"kind", snapshot.Kind,
			"endpoint", snapshot.Endpoint,
			"total_units", snapshot.TotalCapacityUnits,
		)
		d.workerChanged(snapshot)
		d.schedule()
	})
	if err != nil {
		return domain.Worker{}, err
	}
	return snapshot, opErr
}

// Unregister удаляет воркер. Задача, которую он держал, не отменяется,
// а завершается ошибкой ErrWorkerRemoved при проверке назначений.
func (d *Dispatcher) Unregister(ctx context.Context, id string) (domain.Worker, error) {
	var (
		snapshot domain.Worker
		opErr    error
	)
	err := d.call(ctx, func() {
		snapshot, opErr = d.registry.Unregister(id)
		if opErr != nil {
			return
		}
		d.logger.Info("worker unregistered", "worker_id", id, "busy", snapshot.Busy)
		snapshot.Online = false
		d.workerChanged(snapshot)
		d.schedule()
	})
	if err != nil {
		return domain.Worker{}, err
	}
	return snapshot, opErr
}

// Worker возвращает снимок воркера.
func (d *Dispatcher) Worker(ctx context.Context, id string) (domain.Worker, error) {
	var (
		snapshot domain.Worker
		opErr    error
	)
	if err := d.call(ctx, func() {
		snapshot, opErr = d.registry.Get(id)
	}); err != nil {
		return domain.Worker{}, err
	}
	return snapshot, opErr
}

// Workers возвращает снимки воркеров, подходящих под фильтр.
func (d *Dispatcher) Workers(ctx context.Context, filter domain.WorkerFilter) ([]domain.Worker, error) {
	var result []domain.Worker
	err := d.call(ctx, func() {
		result = d.registry.List(filter)
	})
	return result, err
}

// ReportProbe применяет результат probe воркера.
//
// Успешный probe обновляет ёмкость и heartbeat; ошибка или online=false
// переводят воркер в offline с сохранением последней ёмкости.
func (d *Dispatcher) ReportProbe(ctx context.Context, id string, status transport.Status, probeErr error) error {
	var opErr error
	err := d.call(ctx, func() {
		opErr = d.reportProbe(id, status, probeErr)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (d *Dispatcher) reportProbe(id string, status transport.Status, probeErr error) error {
	before, err := d.registry.Get(id)
	if err != nil {
		// Воркер мог быть удалён, пока шёл probe.
		if errors.Is(err, registry.ErrWorkerNotFound) {
			return nil
		}
		return err
	}

	var after domain.Worker
	if probeErr == nil && status.Online {
		after, err = d.registry.UpdateCapacity(id, status.FreeCapacityUnits, status.TotalCapacityUnits, true)
	} else {
		after, err = d.registry.MarkOffline(id)
	}
	if err != nil {
		return err
	}

	if before.Online != after.Online {
		d.logger.Info("worker availability changed",
			"worker_id", id,
			"online", after.Online,
			"probe_error", probeErr,
		)
	}
	if workerDiffers(before, after) {
		d.workerChanged(after)
	}

	d.schedule()
	return nil
}

// ExpireStale переводит в offline воркеры без heartbeat дольше window.
func (d *Dispatcher) ExpireStale(ctx context.Context, window time.Duration) ([]domain.Worker, error) {
	var expired []domain.Worker
	err := d.call(ctx, func() {
		expired = d.registry.ExpireStale(time.Now(), window)
		for _, w := range expired {
			d.logger.Warn("worker heartbeat is stale, marked offline",
				"worker_id", w.ID,
				"last_heartbeat_at", w.LastHeartbeatAt,
			)
			d.workerChanged(w)
		}
		if len(expired) > 0 {
			d.schedule()
		}
	})
	return expired, err
}

// QueueLen возвращает количество задач в статусе QUEUED.
func (d *Dispatcher) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := d.call(ctx, func() {
		for _, task := range d.tasks {
			if task.Status == domain.TaskStatusQueued {
				n++
			}
		}
	})
	return n, err
}

func workerDiffers(a, b domain.Worker) bool {
	return a.Online != b.Online ||
		a.FreeCapacityUnits != b.FreeCapacityUnits ||
		a.TotalCapacityUnits != b.TotalCapacityUnits
}
