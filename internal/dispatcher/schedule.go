package dispatcher

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/strategy"
)

var idleOnline = domain.WorkerFilter{OnlineOnly: true, IdleOnly: true}

// schedule — один проход планирования.
//
// Сначала проверяются назначения активных задач (воркер удалён или
// offline), затем очередь обходится от старшего уровня к младшему.
func (d *Dispatcher) schedule() {
	d.checkAssignments()

	if d.queue.Len() == 0 {
		return
	}

	d.queue.Visit(func(id uuid.UUID) bool {
		task, ok := d.tasks[id]
		if !ok || task.Status != domain.TaskStatusQueued {
			return true
		}

		snapshot := task.Snapshot()
		eligible := strategy.Eligible(d.registry.List(idleOnline), snapshot)
		workerID, ok := d.strategies.Select(task.Strategy, eligible, snapshot)
		if !ok {
			d.logger.Debug("task waiting",
				"task_id", task.ID,
				"reason", ErrNoEligibleWorker,
				"eligible", len(eligible),
			)
			return false
		}

		if err := d.dispatch(task, workerID); err != nil {
			d.logger.Error("failed to dispatch task",
				"task_id", task.ID,
				"worker_id", workerID,
				"error", err,
			)
			return task.Status != domain.TaskStatusQueued
		}
		return true
	})
}

// checkAssignments завершает ошибкой задачи, чей воркер удалён из
// реестра или ушёл в offline.
func (d *Dispatcher) checkAssignments() {
	for _, exec := range d.executions {
		w, err := d.registry.Get(exec.workerID)
		switch {
		case err != nil:
			if exec.cancelled {
				d.dropExecution(exec)
				continue
			}
			d.abandon(exec, fmt.Errorf("%w: %s", ErrWorkerRemoved, exec.workerID), false)
		case !w.Online && !exec.cancelled:
			d.abandon(exec, fmt.Errorf("%w: %s went offline", ErrWorkerUnreachable, exec.workerID), true)
		}
	}
}

// dispatch резервирует воркер и запускает выполнение.
func (d *Dispatcher) dispatch(task *domain.Task, workerID string) error {
	w, err := d.registry.Get(workerID)
	if err != nil {
		return err
	}

	adapter, err := d.adapters.Get(w.Kind)
	if err != nil {
		// Без адаптера задача не выполнится ни на одном воркере этого типа.
		if markErr := task.MarkFailed(err.Error()); markErr == nil {
			d.emit(task)
			d.remember(task)
		}
		return err
	}

	w, err = d.registry.Reserve(workerID, task.RequiredCapacityUnits)
	if err != nil {
		return err
	}
	if err := task.MarkDispatched(workerID); err != nil {
		d.registry.Release(workerID)
		return err
	}

	d.logger.Info("task dispatched",
		"task_id", task.ID,
		"worker_id", workerID,
		"kind", task.Kind,
		"units", task.RequiredCapacityUnits,
	)

	d.emit(task)
	d.workerChanged(w)
	d.startExecution(task, w, adapter)
	return nil
}
