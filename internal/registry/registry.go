// Package registry хранит каталог вычислительных бэкендов (воркеров).
//
// Registry не потокобезопасен намеренно: им владеет горутина Dispatcher'а,
// все мутации выполняются только в ней. Остальные компоненты получают
// копии через List/Get (передаются по значению).
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
)

// Registry — in-memory каталог воркеров.
type Registry struct {
	workers map[string]*domain.Worker
	now     func() time.Time
}

// New создаёт пустой реестр.
func New() *Registry {
	return &Registry{
		workers: make(map[string]*domain.Worker),
		now:     time.Now,
	}
}

// Register добавляет воркер.
//
// Busy и ReservedUnits сбрасываются: новый воркер не удерживает задач.
// Если воркер зарегистрирован как online без heartbeat, heartbeat = сейчас.
func (r *Registry) Register(w domain.Worker) (domain.Worker, error) {
	if err := validate(w); err != nil {
		return domain.Worker{}, err
	}
	if _, exists := r.workers[w.ID]; exists {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerExists, w.ID)
	}

	if w.Name == "" {
		w.Name = w.ID
	}
	w.Busy = false
	w.ReservedUnits = 0
	w.FreeCapacityUnits = clamp(w.FreeCapacityUnits, w.TotalCapacityUnits)
	if w.Online && w.LastHeartbeatAt.IsZero() {
		w.LastHeartbeatAt = r.now()
	}

	r.workers[w.ID] = &w
	return w, nil
}

// Unregister удаляет воркер и возвращает его последний снимок.
func (r *Registry) Unregister(id string) (domain.Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	delete(r.workers, id)
	return *w, nil
}

// UpdateCapacity обновляет ёмкость и online-флаг по результату probe.
//
// online=true также обновляет LastHeartbeatAt.
// Free ограничивается диапазоном [0, total].
func (r *Registry) UpdateCapacity(id string, free, total float64, online bool) (domain.Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	if total < 0 {
		return domain.Worker{}, fmt.Errorf("%w: negative total capacity", ErrInvalidWorker)
	}

	w.TotalCapacityUnits = total
	w.FreeCapacityUnits = clamp(free, total)
	w.Online = online
	if online {
		w.LastHeartbeatAt = r.now()
	}
	return *w, nil
}

// MarkOffline помечает воркер offline, сохраняя последние известные
// значения ёмкости (для диагностики).
func (r *Registry) MarkOffline(id string) (domain.Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	w.Online = false
	return *w, nil
}

// ExpireStale помечает offline все online-воркеры, чей heartbeat старше window.
// Возвращает снимки воркеров, у которых статус изменился.
func (r *Registry) ExpireStale(now time.Time, window time.Duration) []domain.Worker {
	var expired []domain.Worker
	for _, w := range r.workers {
		if w.Online && w.IsStale(now, window) {
			w.Online = false
			expired = append(expired, *w)
		}
	}
	sortByID(expired)
	return expired
}

// Reserve помечает воркер занятым и удерживает units ёмкости.
func (r *Registry) Reserve(id string, units float64) (domain.Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	if w.Busy {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerBusy, id)
	}
	w.Busy = true
	w.ReservedUnits = units
	return *w, nil
}

// Release освобождает воркер.
func (r *Registry) Release(id string) (domain.Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	w.Busy = false
	w.ReservedUnits = 0
	return *w, nil
}

// Get возвращает снимок воркера.
func (r *Registry) Get(id string) (domain.Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	return *w, nil
}

// Has проверяет, зарегистрирован ли воркер.
func (r *Registry) Has(id string) bool {
	_, ok := r.workers[id]
	return ok
}

// List возвращает снимки воркеров, подходящих под фильтр, отсортированные по ID.
func (r *Registry) List(filter domain.WorkerFilter) []domain.Worker {
	result := make([]domain.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		if filter.Match(*w) {
			result = append(result, *w)
		}
	}
	sortByID(result)
	return result
}

// Len возвращает количество воркеров.
func (r *Registry) Len() int {
	return len(r.workers)
}

// CanEverFit проверяет, что хотя бы у одного известного воркера
// полная ёмкость не меньше units (независимо от online/busy).
func (r *Registry) CanEverFit(units float64) bool {
	for _, w := range r.workers {
		if w.TotalCapacityUnits >= units {
			return true
		}
	}
	return false
}

// MaxTotalCapacity возвращает наибольшую полную ёмкость среди воркеров.
func (r *Registry) MaxTotalCapacity() float64 {
	var maxTotal float64
	for _, w := range r.workers {
		maxTotal = max(maxTotal, w.TotalCapacityUnits)
	}
	return maxTotal
}

func validate(w domain.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidWorker)
	}
	if !w.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidWorker, w.Kind)
	}
	if w.Endpoint == "" {
		return fmt.Errorf("%w: empty endpoint", ErrInvalidWorker)
	}
	if w.TotalCapacityUnits < 0 {
		return fmt.Errorf("%w: negative total capacity", ErrInvalidWorker)
	}
	return nil
}

func clamp(free, total float64) float64 {
	return min(max(free, 0), total)
}

func sortByID(workers []domain.Worker) {
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
}
