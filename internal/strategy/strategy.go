// Package strategy выбирает воркер для задачи.
//
// Стратегия — функция над списком подходящих воркеров и задачей.
// Отбор подходящих (online, не занят, хватает ёмкости) делает Dispatcher
// через Eligible; стратегия только выбирает из уже отфильтрованных.
// Отсутствие подходящего воркера — не ошибка: задача остаётся в очереди.
package strategy

import (
	"github.com/shaiso/Atelier/internal/domain"
)

// Strategy — политика выбора воркера.
type Strategy interface {
	// Select возвращает ID выбранного воркера или ok=false,
	// если ни один воркер не подходит.
	Select(eligible []domain.Worker, task domain.Task) (workerID string, ok bool)
}

// Eligible отбирает воркеры, которые могут принять задачу прямо сейчас:
// online, не заняты и имеют достаточно свободной ёмкости.
func Eligible(workers []domain.Worker, task domain.Task) []domain.Worker {
	result := make([]domain.Worker, 0, len(workers))
	for _, w := range workers {
		if w.Online && !w.Busy && w.AvailableUnits() >= task.RequiredCapacityUnits {
			result = append(result, w)
		}
	}
	return result
}

// Set — набор стратегий сессии.
//
// RoundRobin хранит курсор, поэтому экземпляр общий для всех задач сессии.
// Priority строится из StrategyConfig.Order для каждой задачи.
type Set struct {
	roundRobin  *RoundRobin
	leastLoaded *LeastLoaded
	auto        *Auto
}

// NewSet создаёт набор стратегий.
func NewSet() *Set {
	ll := &LeastLoaded{}
	return &Set{
		roundRobin:  NewRoundRobin(),
		leastLoaded: ll,
		auto:        NewAuto(ll),
	}
}

// For возвращает стратегию для конфигурации.
// Неизвестный kind трактуется как auto.
func (s *Set) For(cfg domain.StrategyConfig) Strategy {
	switch cfg.Kind {
	case domain.StrategyRoundRobin:
		return s.roundRobin
	case domain.StrategyLeastLoaded:
		return s.leastLoaded
	case domain.StrategyPriority:
		return NewPriority(cfg.Order)
	default:
		return s.auto
	}
}

// Select — сокращение для For(cfg).Select(eligible, task).
func (s *Set) Select(cfg domain.StrategyConfig, eligible []domain.Worker, task domain.Task) (string, bool) {
	if len(eligible) == 0 {
		return "", false
	}
	return s.For(cfg).Select(eligible, task)
}
