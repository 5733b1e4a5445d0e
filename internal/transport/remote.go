package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// RemoteAdapter — адаптер удалённого GPU-воркера.
//
// Контракт:
//
//	GET  /v1/status                → {"online": bool, "vram_total_gb": N, "vram_free_gb": N}
//	POST /v1/generate/image|video  ← {"task_id", "task_type", "payload"}
//	                               → {"status": "success"|"failed", "result": {...}, "error": "..."}
//	POST /v1/tasks/{handle}/abort  → 2xx/404 — ack, 501 — не поддерживается
type RemoteAdapter struct {
	client jsonClient
}

// NewRemoteAdapter создаёт RemoteAdapter. client может быть nil.
func NewRemoteAdapter(client *http.Client) *RemoteAdapter {
	return &RemoteAdapter{client: jsonClient{http: defaultClient(client)}}
}

// remoteRequest — тело запроса генерации.
type remoteRequest struct {
	TaskID   string         `json:"task_id"`
	TaskType string         `json:"task_type"`
	Payload  map[string]any `json:"payload"`
}

// remoteResponse — тело ответа генерации.
type remoteResponse struct {
	Status string `json:"status"`
	Result struct {
		Images                []string `json:"images,omitempty"`
		Videos                []string `json:"videos,omitempty"`
		GenerationTimeSeconds float64  `json:"generation_time_seconds"`
	} `json:"result"`
	Error string `json:"error,omitempty"`
}

type remoteStatus struct {
	Online      bool    `json:"online"`
	VRAMTotalGB float64 `json:"vram_total_gb"`
	VRAMFreeGB  float64 `json:"vram_free_gb"`
}

// Probe запрашивает статус воркера.
func (a *RemoteAdapter) Probe(ctx context.Context, endpoint string) (Status, error) {
	var resp remoteStatus
	if _, err := a.client.call(ctx, http.MethodGet, joinURL(endpoint, "/v1/status"), nil, &resp, nil); err != nil {
		return Status{}, err
	}
	return Status{
		Online:             resp.Online,
		TotalCapacityUnits: resp.VRAMTotalGB,
		FreeCapacityUnits:  resp.VRAMFreeGB,
	}, nil
}

// GenerateImage запускает генерацию изображений.
func (a *RemoteAdapter) GenerateImage(ctx context.Context, endpoint string, req Request) (ImageResult, error) {
	resp, err := a.generate(ctx, endpoint, "image", req)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{Images: resp.Result.Images, GenerationSeconds: resp.Result.GenerationTimeSeconds}, nil
}

// GenerateVideo запускает генерацию видео.
func (a *RemoteAdapter) GenerateVideo(ctx context.Context, endpoint string, req Request) (VideoResult, error) {
	resp, err := a.generate(ctx, endpoint, "video", req)
	if err != nil {
		return VideoResult{}, err
	}
	return VideoResult{Videos: resp.Result.Videos, GenerationSeconds: resp.Result.GenerationTimeSeconds}, nil
}

func (a *RemoteAdapter) generate(ctx context.Context, endpoint, taskType string, req Request) (*remoteResponse, error) {
	body := remoteRequest{
		TaskID:   req.Handle,
		TaskType: taskType,
		Payload:  payload(req.Parameters),
	}

	var resp remoteResponse
	if _, err := a.client.call(ctx, http.MethodPost, joinURL(endpoint, "/v1/generate/"+taskType), body, &resp, req.OnStart); err != nil {
		return nil, err
	}

	if resp.Status != "success" {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("worker returned status %q", resp.Status)
		}
		return nil, fmt.Errorf("%w: %s", ErrBackend, msg)
	}
	return &resp, nil
}

// Abort просит воркер прервать задачу handle.
// 404 означает, что задачи на воркере уже нет, — это тоже подтверждение.
func (a *RemoteAdapter) Abort(ctx context.Context, endpoint, handle string) error {
	path := "/v1/tasks/" + url.PathEscape(handle) + "/abort"
	status, err := a.client.call(ctx, http.MethodPost, joinURL(endpoint, path), nil, nil, nil)
	switch {
	case err == nil:
		return nil
	case status == http.StatusNotFound && errors.Is(err, ErrBackend):
		return nil
	case status == http.StatusNotImplemented:
		return fmt.Errorf("%w: %v", ErrAbortUnsupported, err)
	default:
		return err
	}
}
