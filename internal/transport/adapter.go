package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
)

// Status — результат probe.
type Status struct {
	Online             bool    `json:"online"`
	TotalCapacityUnits float64 `json:"total_capacity_units"`
	FreeCapacityUnits  float64 `json:"free_capacity_units"`
}

// Request — запрос на генерацию.
type Request struct {
	// Handle — идентификатор задачи на стороне бэкенда (обычно ID задачи),
	// используется в Abort.
	Handle string

	// Parameters — непрозрачные параметры генерации.
	Parameters map[string]any

	// OnStart — вызывается, когда бэкенд принял запрос. Может быть nil.
	OnStart func()
}

// ImageResult — результат генерации изображений.
type ImageResult struct {
	Images            []string
	GenerationSeconds float64
}

// VideoResult — результат генерации видео.
type VideoResult struct {
	Videos            []string
	GenerationSeconds float64
}

// Adapter — единый контракт транспортного адаптера.
type Adapter interface {
	Probe(ctx context.Context, endpoint string) (Status, error)
	GenerateImage(ctx context.Context, endpoint string, req Request) (ImageResult, error)
	GenerateVideo(ctx context.Context, endpoint string, req Request) (VideoResult, error)
	Abort(ctx context.Context, endpoint, handle string) error
}

// Registry — адаптеры по типу воркера.
type Registry struct {
	adapters map[domain.WorkerKind]Adapter
}

// NewRegistry создаёт пустой реестр адаптеров.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.WorkerKind]Adapter)}
}

// DefaultRegistry создаёт реестр с LocalAdapter и RemoteAdapter.
// client может быть nil.
func DefaultRegistry(client *http.Client) *Registry {
	r := NewRegistry()
	r.Register(domain.WorkerKindLocal, NewLocalAdapter(client))
	r.Register(domain.WorkerKindRemote, NewRemoteAdapter(client))
	return r
}

// Register добавляет адаптер для типа воркера.
func (r *Registry) Register(kind domain.WorkerKind, adapter Adapter) {
	r.adapters[kind] = adapter
}

// Get возвращает адаптер для типа воркера.
func (r *Registry) Get(kind domain.WorkerKind) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, kind)
	}
	return adapter, nil
}

// Has проверяет наличие адаптера для типа воркера.
func (r *Registry) Has(kind domain.WorkerKind) bool {
	_, ok := r.adapters[kind]
	return ok
}

// Generate вызывает GenerateImage или GenerateVideo в зависимости от kind
// и приводит результат к domain.Result.
func Generate(ctx context.Context, adapter Adapter, kind domain.TaskKind, endpoint string, req Request) (domain.Result, error) {
	switch kind {
	case domain.TaskKindImage:
		res, err := adapter.GenerateImage(ctx, endpoint, req)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Artifacts: res.Images, GenerationSeconds: res.GenerationSeconds}, nil
	case domain.TaskKindVideo:
		res, err := adapter.GenerateVideo(ctx, endpoint, req)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Artifacts: res.Videos, GenerationSeconds: res.GenerationSeconds}, nil
	default:
		return domain.Result{}, fmt.Errorf("%w: unsupported task kind %q", ErrBackend, kind)
	}
}

// Default HTTP client timeout. Генерация длинная, поэтому реальные
// ограничения задаются через ctx.
const defaultClientTimeout = 30 * time.Minute

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultClientTimeout}
}
