// Package observer доставляет push-уведомления о состоянии оркестратора
// внешним потребителям (SSE, RabbitMQ, метрики, архив задач).
package observer

import (
	"github.com/shaiso/Atelier/internal/domain"
)

// Observer — получатель уведомлений.
//
// Все аргументы — снимки (копии), их можно хранить и изменять.
type Observer interface {
	OnStatsUpdated(snapshot domain.StatsSnapshot)
	OnWorkerChanged(worker domain.Worker)
	OnTaskCompleted(task domain.Task)
}

// Funcs — адаптер функций к Observer. Nil-поля игнорируются.
type Funcs struct {
	StatsUpdated  func(domain.StatsSnapshot)
	WorkerChanged func(domain.Worker)
	TaskCompleted func(domain.Task)
}

func (f Funcs) OnStatsUpdated(snapshot domain.StatsSnapshot) {
	if f.StatsUpdated != nil {
		f.StatsUpdated(snapshot)
	}
}

func (f Funcs) OnWorkerChanged(worker domain.Worker) {
	if f.WorkerChanged != nil {
		f.WorkerChanged(worker)
	}
}

func (f Funcs) OnTaskCompleted(task domain.Task) {
	if f.TaskCompleted != nil {
		f.TaskCompleted(task)
	}
}

// Nop — Observer, который ничего не делает.
type Nop struct{}

func (Nop) OnStatsUpdated(domain.StatsSnapshot) {}
func (Nop) OnWorkerChanged(domain.Worker)       {}
func (Nop) OnTaskCompleted(domain.Task)         {}
