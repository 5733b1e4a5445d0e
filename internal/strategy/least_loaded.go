package strategy

import "github.com/shaiso/Atelier/internal/domain"

// LeastLoaded выбирает воркер с максимальной доступной ёмкостью.
// При равенстве — воркер с меньшим ID.
type LeastLoaded struct{}

// Select выбирает наименее загруженный воркер.
func (LeastLoaded) Select(eligible []domain.Worker, _ domain.Task) (string, bool) {
	var best *domain.Worker
	for i := range eligible {
		w := &eligible[i]
		if best == nil ||
			w.AvailableUnits() > best.AvailableUnits() ||
			(w.AvailableUnits() == best.AvailableUnits() && w.ID < best.ID) {
			best = w
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}
