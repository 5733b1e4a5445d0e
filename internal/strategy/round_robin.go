package strategy

import (
	"sync"

	"github.com/shaiso/Atelier/internal/domain"
)

// RoundRobin — циклический обход воркеров в порядке ID.
//
// Курсор — ID последнего выбранного воркера. Следующий выбор — наименьший
// подходящий ID, больший курсора; если такого нет, обход начинается сначала.
// При стабильном наборе из N воркеров каждый выбирается ровно один раз
// за N последовательных выборов.
type RoundRobin struct {
	mu   sync.Mutex
	last string
}

// NewRoundRobin создаёт стратегию с пустым курсором.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select выбирает следующий воркер после курсора и сдвигает курсор.
func (s *RoundRobin) Select(eligible []domain.Worker, _ domain.Task) (string, bool) {
	if len(eligible) == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next, lowest string
	for _, w := range eligible {
		if lowest == "" || w.ID < lowest {
			lowest = w.ID
		}
		if w.ID > s.last && (next == "" || w.ID < next) {
			next = w.ID
		}
	}
	if next == "" {
		next = lowest
	}

	s.last = next
	return next, true
}

// Cursor возвращает ID последнего выбранного воркера.
func (s *RoundRobin) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
