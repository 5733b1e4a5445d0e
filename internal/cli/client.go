package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — задача генерации из API.
type TaskResponse struct {
	ID                    string         `json:"id"`
	Kind                  string         `json:"kind"`
	Status                string         `json:"status"`
	RequiredCapacityUnits float64        `json:"required_capacity_units"`
	Priority              int            `json:"priority"`
	Parameters            map[string]any `json:"parameters,omitempty"`
	WorkerID              string         `json:"worker_id,omitempty"`
	Result                *TaskResult    `json:"result,omitempty"`
	Error                 string         `json:"error,omitempty"`
	CreatedAt             string         `json:"created_at"`
	FinishedAt            string         `json:"finished_at,omitempty"`
	GenerationSeconds     float64        `json:"generation_seconds,omitempty"`
}

// TaskResult — результат успешной генерации.
type TaskResult struct {
	Artifacts         []string `json:"artifacts"`
	GenerationSeconds float64  `json:"generation_seconds"`
}

// IsTerminal сообщает, что задача в финальном статусе.
func (t TaskResponse) IsTerminal() bool {
	switch t.Status {
	case "SUCCEEDED", "FAILED", "CANCELLED":
		return true
	}
	return false
}

// WorkerResponse — воркер из API.
type WorkerResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Endpoint           string  `json:"endpoint"`
	Kind               string  `json:"kind"`
	Online             bool    `json:"online"`
	Busy               bool    `json:"busy"`
	TotalCapacityUnits float64 `json:"total_capacity_units"`
	FreeCapacityUnits  float64 `json:"free_capacity_units"`
	AvailableUnits     float64 `json:"available_units"`
	LastHeartbeatAt    string  `json:"last_heartbeat_at,omitempty"`
}

// WorkerUtilization — загрузка воркера в сводке.
type WorkerUtilization struct {
	WorkerID    string  `json:"worker_id"`
	Utilization float64 `json:"utilization"`
	Tasks       int     `json:"tasks"`
}

// StatsResponse — сводка пропускной способности из API.
type StatsResponse struct {
	Counts                map[string]int      `json:"counts"`
	QueueLength           int                 `json:"queue_length"`
	TasksPerSecond        float64             `json:"tasks_per_second"`
	SuccessRate           float64             `json:"success_rate"`
	MeanGenerationSeconds float64             `json:"mean_generation_seconds"`
	WindowSeconds         float64             `json:"window_seconds"`
	Workers               []WorkerUtilization `json:"workers"`
	DroppedEvents         int64               `json:"dropped_events"`
	TakenAt               string              `json:"taken_at"`
}

// Event — одно событие из потока /api/v1/events.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// --- Request types ---

// StrategyRequest — стратегия выбора воркера.
type StrategyRequest struct {
	Kind  string   `json:"kind,omitempty"`
	Order []string `json:"order,omitempty"`
}

// SubmitTaskRequest — запрос на генерацию.
type SubmitTaskRequest struct {
	Kind                  string          `json:"kind"`
	RequiredCapacityUnits float64         `json:"required_capacity_units,omitempty"`
	Priority              *int            `json:"priority,omitempty"`
	Parameters            map[string]any  `json:"parameters,omitempty"`
	Strategy              StrategyRequest `json:"strategy"`
}

// RegisterWorkerRequest — регистрация воркера.
type RegisterWorkerRequest struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name,omitempty"`
	Endpoint           string  `json:"endpoint"`
	Kind               string  `json:"kind"`
	TotalCapacityUnits float64 `json:"total_capacity_units,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	Status   string
	WorkerID string
	Limit    int
	Archive  bool
}

// ListWorkersOpts — параметры фильтрации воркеров.
type ListWorkersOpts struct {
	Kind   string
	Online bool
	Idle   bool
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Atelier API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// SubmitTask ставит задачу в очередь.
func (c *Client) SubmitTask(req SubmitTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// ListTasks возвращает задачи с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.WorkerID != "" {
		params.Set("worker_id", opts.WorkerID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Archive {
		params.Set("source", "archive")
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// CancelTask отменяет задачу.
func (c *Client) CancelTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/cancel", nil, &task)
	return &task, err
}

// WaitTask опрашивает задачу до финального статуса.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (*TaskResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := c.GetTask(id)
		if err != nil {
			return nil, err
		}
		if task.IsTerminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// --- Workers ---

// ListWorkers возвращает воркеры.
func (c *Client) ListWorkers(opts ListWorkersOpts) ([]WorkerResponse, error) {
	params := url.Values{}
	if opts.Kind != "" {
		params.Set("kind", opts.Kind)
	}
	if opts.Online {
		params.Set("online", "true")
	}
	if opts.Idle {
		params.Set("idle", "true")
	}

	var workers []WorkerResponse
	err := c.list("/api/v1/workers", params, &workers)
	return workers, err
}

// RegisterWorker регистрирует воркер.
func (c *Client) RegisterWorker(req RegisterWorkerRequest) (*WorkerResponse, error) {
	var worker WorkerResponse
	err := c.post("/api/v1/workers", req, &worker)
	return &worker, err
}

// GetWorker возвращает воркер по ID.
func (c *Client) GetWorker(id string) (*WorkerResponse, error) {
	var worker WorkerResponse
	err := c.get("/api/v1/workers/"+url.PathEscape(id), &worker)
	return &worker, err
}

// UnregisterWorker удаляет воркер.
func (c *Client) UnregisterWorker(id string) (*WorkerResponse, error) {
	var worker WorkerResponse
	err := c.doData(http.MethodDelete, "/api/v1/workers/"+url.PathEscape(id), nil, &worker)
	return &worker, err
}

// --- Stats ---

// GetStats возвращает сводку пропускной способности.
func (c *Client) GetStats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// StreamEvents читает поток событий и вызывает fn для каждого.
// Возвращает nil, когда ctx отменён.
func (c *Client) StreamEvents(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Поток бессрочный: общий таймаут клиента тут не подходит.
	stream := &http.Client{Transport: c.httpClient.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var ev Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "" && ev.Name != "":
			if err := fn(ev); err != nil {
				return err
			}
			ev = Event{}
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
