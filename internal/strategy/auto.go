package strategy

import "github.com/shaiso/Atelier/internal/domain"

// Auto — составная стратегия.
//
// Если подходят воркеры разных типов, предпочитается тип, лучше
// подходящий задаче (видео — локальный render-сервер, изображения — пул
// удалённых GPU), и внутри него применяется LeastLoaded.
// Если подходит только один тип, сразу делегирует в LeastLoaded.
type Auto struct {
	inner     Strategy
	preferred map[domain.TaskKind]domain.WorkerKind
}

// NewAuto создаёт Auto поверх inner (обычно LeastLoaded).
func NewAuto(inner Strategy) *Auto {
	if inner == nil {
		inner = LeastLoaded{}
	}
	return &Auto{
		inner: inner,
		preferred: map[domain.TaskKind]domain.WorkerKind{
			domain.TaskKindVideo: domain.WorkerKindLocal,
			domain.TaskKindImage: domain.WorkerKindRemote,
		},
	}
}

// PreferredKind возвращает предпочтительный тип воркера для задачи.
func (s *Auto) PreferredKind(kind domain.TaskKind) domain.WorkerKind {
	return s.preferred[kind]
}

// Select выбирает воркер предпочтительного типа, если он есть.
func (s *Auto) Select(eligible []domain.Worker, task domain.Task) (string, bool) {
	if len(eligible) == 0 {
		return "", false
	}

	kinds := make(map[domain.WorkerKind]int)
	for _, w := range eligible {
		kinds[w.Kind]++
	}
	if len(kinds) == 1 {
		return s.inner.Select(eligible, task)
	}

	want, ok := s.preferred[task.Kind]
	if !ok || kinds[want] == 0 {
		return s.inner.Select(eligible, task)
	}

	subset := make([]domain.Worker, 0, kinds[want])
	for _, w := range eligible {
		if w.Kind == want {
			subset = append(subset, w)
		}
	}
	return s.inner.Select(subset, task)
}
