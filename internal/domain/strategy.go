package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidStrategy — некорректная конфигурация стратегии.
var ErrInvalidStrategy = errors.New("invalid strategy config")

// StrategyKind — стратегия распределения задач по воркерам.
type StrategyKind string

const (
	StrategyRoundRobin  StrategyKind = "round_robin"
	StrategyLeastLoaded StrategyKind = "least_loaded"
	StrategyPriority    StrategyKind = "priority"
	StrategyAuto        StrategyKind = "auto"
)

// StrategyConfig — неизменяемое описание стратегии.
//
// Задаётся на сессию (по умолчанию) или на отдельную задачу.
type StrategyConfig struct {
	// Kind — стратегия. Пусто означает «взять стратегию сессии».
	Kind StrategyKind `json:"kind,omitempty"`

	// Order — список ID воркеров в порядке предпочтения (для priority).
	Order []string `json:"order,omitempty"`
}

// IsZero возвращает true, если стратегия не задана.
func (c StrategyConfig) IsZero() bool {
	return c.Kind == "" && len(c.Order) == 0
}

// Validate проверяет конфигурацию.
func (c StrategyConfig) Validate() error {
	switch c.Kind {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyAuto:
		return nil
	case StrategyPriority:
		if len(c.Order) == 0 {
			return fmt.Errorf("%w: priority strategy requires order", ErrInvalidStrategy)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, c.Kind)
	}
}

// Clone возвращает копию.
func (c StrategyConfig) Clone() StrategyConfig {
	return StrategyConfig{Kind: c.Kind, Order: slices.Clone(c.Order)}
}

// Or возвращает c, если задана, иначе fallback.
func (c StrategyConfig) Or(fallback StrategyConfig) StrategyConfig {
	if c.Kind == "" {
		return fallback.Clone()
	}
	return c.Clone()
}

// ParseStrategyKind парсит строку ("round-robin", "LeastLoaded", "auto"...).
func ParseStrategyKind(s string) (StrategyKind, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	switch norm {
	case "round_robin", "roundrobin":
		return StrategyRoundRobin, nil
	case "least_loaded", "leastloaded":
		return StrategyLeastLoaded, nil
	case "priority":
		return StrategyPriority, nil
	case "auto", "":
		return StrategyAuto, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, s)
	}
}
