// Package config читает конфигурацию оркестратора из переменных окружения.
//
// Незаданные значения остаются нулевыми: значения по умолчанию
// применяют конструкторы компонентов.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
)

// ErrInvalid — некорректное значение переменной окружения или файла воркеров.
var ErrInvalid = errors.New("invalid config")

// Config — конфигурация процесса atelier-orchestrator.
type Config struct {
	// Strategy — стратегия сессии (ATELIER_STRATEGY, ATELIER_PRIORITY_ORDER).
	Strategy domain.StrategyConfig

	ProbeInterval   time.Duration // ATELIER_PROBE_INTERVAL
	ProbeTimeout    time.Duration // ATELIER_PROBE_TIMEOUT
	StalenessWindow time.Duration // ATELIER_STALENESS_WINDOW
	CancelGrace     time.Duration // ATELIER_CANCEL_GRACE
	TaskTimeout     time.Duration // ATELIER_TASK_TIMEOUT
	HistoryLimit    int           // ATELIER_HISTORY_LIMIT

	StatsWindow  time.Duration // ATELIER_STATS_WINDOW
	StatsCadence string        // ATELIER_STATS_CADENCE ("off" выключает)

	// WorkersFile — JSON-файл с начальным списком воркеров (ATELIER_WORKERS_FILE).
	WorkersFile string

	ImageUnits float64 // ATELIER_IMAGE_UNITS
	VideoUnits float64 // ATELIER_VIDEO_UNITS

	Port        string // ORCH_PORT (default: 8083)
	DBURL       string // DB_URL; пусто — без PostgreSQL
	RabbitMQURL string // RABBITMQ_URL; пусто — без RabbitMQ
}

// Load читает конфигурацию из окружения.
func Load() (Config, error) {
	cfg := Config{
		StatsCadence: os.Getenv("ATELIER_STATS_CADENCE"),
		WorkersFile:  os.Getenv("ATELIER_WORKERS_FILE"),
		Port:         envOr("ORCH_PORT", "8083"),
		DBURL:        os.Getenv("DB_URL"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
	}

	var errs []error

	strategy, err := loadStrategy()
	errs = append(errs, err)
	cfg.Strategy = strategy

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ATELIER_PROBE_INTERVAL", &cfg.ProbeInterval},
		{"ATELIER_PROBE_TIMEOUT", &cfg.ProbeTimeout},
		{"ATELIER_STALENESS_WINDOW", &cfg.StalenessWindow},
		{"ATELIER_CANCEL_GRACE", &cfg.CancelGrace},
		{"ATELIER_TASK_TIMEOUT", &cfg.TaskTimeout},
		{"ATELIER_STATS_WINDOW", &cfg.StatsWindow},
	}
	for _, d := range durations {
		*d.dst, err = envDuration(d.key)
		errs = append(errs, err)
	}

	cfg.ImageUnits, err = envFloat("ATELIER_IMAGE_UNITS")
	errs = append(errs, err)
	cfg.VideoUnits, err = envFloat("ATELIER_VIDEO_UNITS")
	errs = append(errs, err)
	cfg.HistoryLimit, err = envInt("ATELIER_HISTORY_LIMIT")
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadStrategy() (domain.StrategyConfig, error) {
	kind, err := domain.ParseStrategyKind(os.Getenv("ATELIER_STRATEGY"))
	if err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("%w: ATELIER_STRATEGY: %v", ErrInvalid, err)
	}

	cfg := domain.StrategyConfig{Kind: kind, Order: splitList(os.Getenv("ATELIER_PRIORITY_ORDER"))}
	if err := cfg.Validate(); err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// LoadWorkers читает список воркеров из JSON-файла.
//
// Формат: массив объектов {id, name, endpoint, kind, total_capacity_units}.
func LoadWorkers(path string) ([]domain.Worker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workers file: %w", err)
	}

	var workers []domain.Worker
	if err := json.Unmarshal(data, &workers); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}

	seen := make(map[string]bool, len(workers))
	for i, w := range workers {
		switch {
		case w.ID == "":
			return nil, fmt.Errorf("%w: worker #%d: empty id", ErrInvalid, i)
		case seen[w.ID]:
			return nil, fmt.Errorf("%w: duplicate worker id %q", ErrInvalid, w.ID)
		case w.Endpoint == "":
			return nil, fmt.Errorf("%w: worker %q: empty endpoint", ErrInvalid, w.ID)
		case !w.Kind.IsValid():
			return nil, fmt.Errorf("%w: worker %q: unknown kind %q", ErrInvalid, w.ID, w.Kind)
		}
		seen[w.ID] = true
	}

	return workers, nil
}

// --- Helpers ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s=%q: want a positive duration", ErrInvalid, key, v)
	}
	return d, nil
}

func envFloat(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%w: %s=%q: want a non-negative number", ErrInvalid, key, v)
	}
	return f, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q: want a non-negative integer", ErrInvalid, key, v)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
