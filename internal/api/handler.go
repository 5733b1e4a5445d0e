package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Atelier/internal/dispatcher"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/repo"
)

// Orchestrator — команды Dispatcher'а, доступные через API.
type Orchestrator interface {
	Submit(ctx context.Context, req dispatcher.Request) (domain.Task, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Task, error)
	Task(ctx context.Context, id uuid.UUID) (domain.Task, error)
	Tasks(ctx context.Context, filter dispatcher.TaskFilter) ([]domain.Task, error)
	Register(ctx context.Context, w domain.Worker) (domain.Worker, error)
	Unregister(ctx context.Context, id string) (domain.Worker, error)
	Worker(ctx context.Context, id string) (domain.Worker, error)
	Workers(ctx context.Context, filter domain.WorkerFilter) ([]domain.Worker, error)
	QueueLen(ctx context.Context) (int, error)
}

// StatsSource — источник сводки (stats.Aggregator).
type StatsSource interface {
	Snapshot(ctx context.Context) (domain.StatsSnapshot, error)
}

// Prober — немедленный probe воркера (health.Monitor).
type Prober interface {
	ProbeNow(ctx context.Context, w domain.Worker) bool
}

// TaskArchive — архив завершённых задач (repo.TaskRepo).
type TaskArchive interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Task, error)
	ListRecent(ctx context.Context, filter repo.TaskFilter) ([]domain.Task, error)
}

// WorkerCatalog — постоянный каталог воркеров (repo.WorkerRepo).
type WorkerCatalog interface {
	Upsert(ctx context.Context, w domain.Worker) error
	Disable(ctx context.Context, id string) error
}

// HTTPObserver считает HTTP запросы (telemetry.Metrics).
type HTTPObserver interface {
	ObserveHTTP(method string, code int)
}

// Handler — обработчик API.
type Handler struct {
	orch    Orchestrator
	stats   StatsSource
	prober  Prober
	archive TaskArchive
	catalog WorkerCatalog
	events  *EventStream
	metrics HTTPObserver

	probeTimeout time.Duration
	logger       *slog.Logger
}

// Config — зависимости Handler. Обязателен только Orchestrator.
type Config struct {
	Orchestrator Orchestrator
	Stats        StatsSource
	Prober       Prober
	Archive      TaskArchive
	Catalog      WorkerCatalog
	Events       *EventStream
	Metrics      HTTPObserver

	// ProbeTimeout — сколько ждать probe после регистрации воркера (default: 3s).
	ProbeTimeout time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}

	return &Handler{
		orch:         cfg.Orchestrator,
		stats:        cfg.Stats,
		prober:       cfg.Prober,
		archive:      cfg.Archive,
		catalog:      cfg.Catalog,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}
