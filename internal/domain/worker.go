package domain

import "time"

// WorkerKind — тип вычислительного бэкенда.
type WorkerKind string

const (
	// WorkerKindLocal — локальный render-сервер (WebUI-подобный API).
	WorkerKindLocal WorkerKind = "local-render-server"

	// WorkerKindRemote — удалённый GPU-воркер из пула.
	WorkerKindRemote WorkerKind = "remote-gpu-worker"
)

// IsValid проверяет, что тип воркера известен.
func (k WorkerKind) IsValid() bool {
	return k == WorkerKindLocal || k == WorkerKindRemote
}

// Worker — зарегистрированный вычислительный бэкенд.
//
// Worker создаётся при регистрации (явной или через каталог),
// обновляется Health Monitor'ом и удаляется только явным Unregister.
// Значения типа Worker, отданные наружу, — снимки (копии).
type Worker struct {
	// ID — стабильный идентификатор.
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Endpoint — адрес, который использует транспортный адаптер.
	Endpoint string `json:"endpoint"`

	// Kind — тип бэкенда, определяет адаптер.
	Kind WorkerKind `json:"kind"`

	// TotalCapacityUnits — полная ёмкость (ГБ VRAM).
	TotalCapacityUnits float64 `json:"total_capacity_units"`

	// FreeCapacityUnits — свободная ёмкость по последнему probe.
	// Всегда 0 ≤ Free ≤ Total.
	FreeCapacityUnits float64 `json:"free_capacity_units"`

	// ReservedUnits — ёмкость, удерживаемая активной задачей воркера.
	ReservedUnits float64 `json:"reserved_units"`

	// Online — воркер отвечает на probe и не устарел.
	Online bool `json:"online"`

	// Busy — воркер удерживает назначенную задачу.
	Busy bool `json:"busy"`

	// LastHeartbeatAt — время последнего успешного probe.
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// AvailableUnits возвращает ёмкость, доступную для новой задачи.
func (w Worker) AvailableUnits() float64 {
	avail := w.FreeCapacityUnits - w.ReservedUnits
	if avail < 0 {
		return 0
	}
	return avail
}

// IsStale проверяет, что heartbeat старше окна устаревания.
func (w Worker) IsStale(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(w.LastHeartbeatAt) > window
}

// WorkerFilter — фильтр для списка воркеров.
type WorkerFilter struct {
	// Kind — только воркеры этого типа (пусто — все).
	Kind WorkerKind

	// OnlineOnly — только online.
	OnlineOnly bool

	// IdleOnly — только не занятые.
	IdleOnly bool
}

// Match проверяет воркер на соответствие фильтру.
func (f WorkerFilter) Match(w Worker) bool {
	if f.Kind != "" && w.Kind != f.Kind {
		return false
	}
	if f.OnlineOnly && !w.Online {
		return false
	}
	if f.IdleOnly && w.Busy {
		return false
	}
	return true
}
