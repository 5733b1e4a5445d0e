package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const bytesPerGB = 1 << 30

// LocalAdapter — адаптер локального render-сервера с WebUI-подобным API.
//
// Endpoints:
//   - GET  /sdapi/v1/memory    — cuda.system.{total,free} в байтах
//   - POST /sdapi/v1/txt2img   — параметры как есть, ответ {"images": [...]}
//   - POST /sdapi/v1/txt2vid   — параметры как есть, ответ {"videos": [...], "generation_time": N}
//   - POST /sdapi/v1/interrupt — прерывает текущую генерацию
//
// Сервер не сообщает время генерации изображений, поэтому оно
// измеряется на стороне адаптера.
type LocalAdapter struct {
	client jsonClient
}

// NewLocalAdapter создаёт LocalAdapter. client может быть nil.
func NewLocalAdapter(client *http.Client) *LocalAdapter {
	return &LocalAdapter{client: jsonClient{http: defaultClient(client)}}
}

type localMemoryResponse struct {
	Cuda struct {
		System struct {
			Free  float64 `json:"free"`
			Used  float64 `json:"used"`
			Total float64 `json:"total"`
		} `json:"system"`
	} `json:"cuda"`
	Error string `json:"error,omitempty"`
}

type localImageResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info,omitempty"`
}

type localVideoResponse struct {
	Videos         []string `json:"videos"`
	GenerationTime float64  `json:"generation_time"`
}

// Probe читает статистику видеопамяти.
func (a *LocalAdapter) Probe(ctx context.Context, endpoint string) (Status, error) {
	var resp localMemoryResponse
	if _, err := a.client.call(ctx, http.MethodGet, joinURL(endpoint, "/sdapi/v1/memory"), nil, &resp, nil); err != nil {
		return Status{}, err
	}

	// Сервер без CUDA отвечает {"cuda": {"error": ...}} — это не GPU-бэкенд.
	if resp.Cuda.System.Total <= 0 {
		return Status{}, fmt.Errorf("%w: no cuda memory reported", ErrInvalidResponse)
	}

	return Status{
		Online:             true,
		TotalCapacityUnits: resp.Cuda.System.Total / bytesPerGB,
		FreeCapacityUnits:  resp.Cuda.System.Free / bytesPerGB,
	}, nil
}

// GenerateImage вызывает txt2img.
func (a *LocalAdapter) GenerateImage(ctx context.Context, endpoint string, req Request) (ImageResult, error) {
	start := time.Now()

	var resp localImageResponse
	if _, err := a.client.call(ctx, http.MethodPost, joinURL(endpoint, "/sdapi/v1/txt2img"), payload(req.Parameters), &resp, req.OnStart); err != nil {
		return ImageResult{}, err
	}
	if len(resp.Images) == 0 {
		return ImageResult{}, fmt.Errorf("%w: no images returned", ErrBackend)
	}

	return ImageResult{
		Images:            resp.Images,
		GenerationSeconds: time.Since(start).Seconds(),
	}, nil
}

// GenerateVideo вызывает txt2vid.
func (a *LocalAdapter) GenerateVideo(ctx context.Context, endpoint string, req Request) (VideoResult, error) {
	start := time.Now()

	var resp localVideoResponse
	if _, err := a.client.call(ctx, http.MethodPost, joinURL(endpoint, "/sdapi/v1/txt2vid"), payload(req.Parameters), &resp, req.OnStart); err != nil {
		return VideoResult{}, err
	}
	if len(resp.Videos) == 0 {
		return VideoResult{}, fmt.Errorf("%w: no videos returned", ErrBackend)
	}

	seconds := resp.GenerationTime
	if seconds <= 0 {
		seconds = time.Since(start).Seconds()
	}
	return VideoResult{Videos: resp.Videos, GenerationSeconds: seconds}, nil
}

// Abort прерывает текущую генерацию. Render-сервер выполняет одну задачу
// за раз, поэтому handle не используется.
func (a *LocalAdapter) Abort(ctx context.Context, endpoint, _ string) error {
	_, err := a.client.call(ctx, http.MethodPost, joinURL(endpoint, "/sdapi/v1/interrupt"), nil, nil, nil)
	return err
}

// payload возвращает непустое тело запроса.
func payload(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
