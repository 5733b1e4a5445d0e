package strategy

import (
	"slices"

	"github.com/shaiso/Atelier/internal/domain"
)

// Priority выбирает первый подходящий воркер из списка предпочтений.
// Воркеры, которых нет в списке, не выбираются никогда.
type Priority struct {
	order []string
}

// NewPriority создаёт стратегию с порядком предпочтения.
func NewPriority(order []string) *Priority {
	return &Priority{order: slices.Clone(order)}
}

// Select проходит список по порядку и возвращает первый подходящий воркер.
func (s *Priority) Select(eligible []domain.Worker, _ domain.Task) (string, bool) {
	ids := make(map[string]struct{}, len(eligible))
	for _, w := range eligible {
		ids[w.ID] = struct{}{}
	}
	for _, id := range s.order {
		if _, ok := ids[id]; ok {
			return id, true
		}
	}
	return "", false
}
