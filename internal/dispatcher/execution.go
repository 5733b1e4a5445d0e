package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/telemetry"
	"github.com/shaiso/Atelier/internal/transport"
)

// execution — выполнение задачи на воркере. Держит воркер занятым,
// пока запись присутствует в Dispatcher.executions.
type execution struct {
	taskID   uuid.UUID
	workerID string
	endpoint string
	adapter  transport.Adapter
	cancel   context.CancelFunc

	// Поля ниже меняет только горутина-владелец.
	cancelled bool
	grace     *time.Timer
}

// stop прекращает доставку результата и останавливает grace-таймер.
func (e *execution) stop() {
	e.cancel()
	if e.grace != nil {
		e.grace.Stop()
	}
}

// startExecution запускает генерацию в отдельной горутине.
func (d *Dispatcher) startExecution(task *domain.Task, w domain.Worker, adapter transport.Adapter) {
	ctx, cancel := context.WithTimeout(d.runCtx, d.taskTimeout)
	logger := telemetry.WithWorkerID(telemetry.WithTaskID(d.logger, task.ID.String()), w.ID)
	ctx = telemetry.WithLogger(ctx, logger)
	exec := &execution{
		taskID:   task.ID,
		workerID: w.ID,
		endpoint: w.Endpoint,
		adapter:  adapter,
		cancel:   cancel,
	}
	d.executions[task.ID] = exec

	req := transport.Request{
		Handle:     task.ID.String(),
		Parameters: maps.Clone(task.Parameters),
		OnStart: func() {
			d.post(func() { d.onStarted(exec) })
		},
	}
	kind := task.Kind
	timeout := d.taskTimeout

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		result, err := transport.Generate(ctx, adapter, kind, exec.endpoint, req)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: no result after %s", ErrBackendTimeout, timeout)
		}
		d.post(func() { d.onFinished(exec, result, err) })
	}()
}

// current проверяет, что exec всё ещё актуальное выполнение своей задачи.
func (d *Dispatcher) current(exec *execution) bool {
	return d.executions[exec.taskID] == exec
}

// onStarted — адаптер подтвердил, что бэкенд принял запрос.
func (d *Dispatcher) onStarted(exec *execution) {
	if !d.current(exec) || exec.cancelled {
		return
	}
	task := d.tasks[exec.taskID]
	if task == nil || task.Status != domain.TaskStatusDispatched {
		return
	}
	if err := task.MarkRunning(); err != nil {
		return
	}
	d.logger.Debug("task running", "task_id", task.ID, "worker_id", exec.workerID)
	d.emit(task)
}

// onFinished — адаптер вернул результат или ошибку.
func (d *Dispatcher) onFinished(exec *execution, result domain.Result, err error) {
	if !d.current(exec) {
		// Воркер уже освобождён принудительно, результат не нужен.
		return
	}
	d.dropExecution(exec)
	defer d.schedule()

	task := d.tasks[exec.taskID]
	if exec.cancelled || task == nil || task.IsFinished() {
		d.logger.Debug("execution returned after cancel, worker released",
			"task_id", exec.taskID,
			"worker_id", exec.workerID,
		)
		return
	}

	// Адаптер мог не сообщить о старте
	if task.Status == domain.TaskStatusDispatched {
		if err := task.MarkRunning(); err == nil {
			d.emit(task)
		}
	}

	if err == nil {
		if markErr := task.MarkSucceeded(result); markErr != nil {
			d.logger.Error("failed to mark task succeeded", "task_id", task.ID, "error", markErr)
			return
		}
		d.logger.Info("task succeeded",
			"task_id", task.ID,
			"worker_id", exec.workerID,
			"artifacts", len(result.Artifacts),
			"generation_time", task.GenerationTime(),
		)
	} else {
		cause := d.classify(exec, err)
		if markErr := task.MarkFailed(cause.Error()); markErr != nil {
			d.logger.Error("failed to mark task failed", "task_id", task.ID, "error", markErr)
			return
		}
		d.logger.Warn("task failed",
			"task_id", task.ID,
			"worker_id", exec.workerID,
			"error", cause,
		)
	}

	d.emit(task)
	d.remember(task)
}

// classify приводит ошибку адаптера к таксономии диспетчера.
// Ошибка соединения переводит воркер в offline.
func (d *Dispatcher) classify(exec *execution, err error) error {
	switch {
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, ErrBackend):
		return err
	case transport.IsConnectivity(err):
		if w, mErr := d.registry.MarkOffline(exec.workerID); mErr == nil {
			d.workerChanged(w)
		}
		return fmt.Errorf("%w: %v", ErrWorkerUnreachable, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
}

// cancel выполняется в горутине-владельце.
func (d *Dispatcher) cancel(id uuid.UUID) (domain.Task, error) {
	task, ok := d.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.IsFinished() {
		return task.Snapshot(), fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, task.Status)
	}

	wasActive := task.Status.IsActive()
	workerID := task.AssignedWorkerID
	if err := task.MarkCancelled(ErrCancelledByCaller.Error()); err != nil {
		return domain.Task{}, err
	}

	d.logger.Info("task cancelled",
		"task_id", id,
		"worker_id", workerID,
		"was_active", wasActive,
	)
	d.emit(task)
	d.remember(task)

	if exec := d.executions[id]; wasActive && exec != nil {
		d.requestAbort(exec)
	}
	return task.Snapshot(), nil
}

// requestAbort просит бэкенд прервать генерацию. Воркер остаётся занятым
// до подтверждения, возврата выполнения или истечения grace-периода.
func (d *Dispatcher) requestAbort(exec *execution) {
	exec.cancelled = true
	exec.grace = time.AfterFunc(d.cancelGrace, func() {
		d.post(func() { d.onGraceExpired(exec) })
	})

	grace := d.cancelGrace
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(d.runCtx, grace)
		defer cancel()

		err := exec.adapter.Abort(ctx, exec.endpoint, exec.taskID.String())
		d.post(func() { d.onAbortResult(exec, err) })
	}()
}

func (d *Dispatcher) onAbortResult(exec *execution, err error) {
	if !d.current(exec) {
		return
	}
	if err != nil {
		// Ждём возврата выполнения или истечения grace-периода.
		d.logger.Warn("abort not confirmed",
			"task_id", exec.taskID,
			"worker_id", exec.workerID,
			"error", err,
		)
		return
	}

	d.logger.Info("abort confirmed, worker released",
		"task_id", exec.taskID,
		"worker_id", exec.workerID,
	)
	d.dropExecution(exec)
	d.schedule()
}

func (d *Dispatcher) onGraceExpired(exec *execution) {
	if !d.current(exec) {
		return
	}
	d.logger.Warn("worker force-released",
		"task_id", exec.taskID,
		"worker_id", exec.workerID,
		"grace", d.cancelGrace,
		"error", ErrAbortTimeout,
	)
	d.dropExecution(exec)
	d.schedule()
}

// dropExecution удаляет запись выполнения и освобождает воркер.
func (d *Dispatcher) dropExecution(exec *execution) {
	exec.stop()
	delete(d.executions, exec.taskID)

	if !d.registry.Has(exec.workerID) {
		return
	}
	if w, err := d.registry.Release(exec.workerID); err == nil {
		d.workerChanged(w)
	}
}

// abandon завершает ошибкой задачу, чей воркер стал недоступен.
func (d *Dispatcher) abandon(exec *execution, cause error, release bool) {
	exec.stop()
	delete(d.executions, exec.taskID)

	if release {
		if w, err := d.registry.Release(exec.workerID); err == nil {
			d.workerChanged(w)
		}
	}

	task := d.tasks[exec.taskID]
	if task == nil || !task.Status.IsActive() {
		return
	}
	if err := task.MarkFailed(cause.Error()); err != nil {
		return
	}
	d.logger.Warn("task failed, worker lost",
		"task_id", task.ID,
		"worker_id", exec.workerID,
		"error", cause,
	)
	d.emit(task)
	d.remember(task)
}
