package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Atelier/internal/dispatcher"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/health"
	"github.com/shaiso/Atelier/internal/observer"
	"github.com/shaiso/Atelier/internal/registry"
	"github.com/shaiso/Atelier/internal/repo"
	"github.com/shaiso/Atelier/internal/stats"
	"github.com/shaiso/Atelier/internal/transport"
)

// --- Test doubles ---

type fakeOrch struct {
	mu sync.Mutex

	submitted   []dispatcher.Request
	submitErr   error
	task        domain.Task
	taskErr     error
	cancelErr   error
	tasks       []domain.Task
	taskFilter  dispatcher.TaskFilter
	workers     []domain.Worker
	workerErr   error
	registerErr error
	queueLen    int
	queueErr    error
}

func (f *fakeOrch) Submit(_ context.Context, req dispatcher.Request) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return domain.Task{}, f.submitErr
	}
	return domain.Task{ID: uuid.New(), Kind: req.Kind, Status: domain.TaskStatusQueued, Priority: req.Priority}, nil
}

func (f *fakeOrch) Cancel(_ context.Context, id uuid.UUID) (domain.Task, error) {
	if f.cancelErr != nil {
		return domain.Task{}, f.cancelErr
	}
	return domain.Task{ID: id, Status: domain.TaskStatusCancelled}, nil
}

func (f *fakeOrch) Task(context.Context, uuid.UUID) (domain.Task, error) {
	return f.task, f.taskErr
}

func (f *fakeOrch) Tasks(_ context.Context, filter dispatcher.TaskFilter) ([]domain.Task, error) {
	f.taskFilter = filter
	return f.tasks, nil
}

func (f *fakeOrch) Register(_ context.Context, w domain.Worker) (domain.Worker, error) {
	if f.registerErr != nil {
		return domain.Worker{}, f.registerErr
	}
	return w, nil
}

func (f *fakeOrch) Unregister(_ context.Context, id string) (domain.Worker, error) {
	if f.workerErr != nil {
		return domain.Worker{}, f.workerErr
	}
	return domain.Worker{ID: id}, nil
}

func (f *fakeOrch) Worker(_ context.Context, id string) (domain.Worker, error) {
	if f.workerErr != nil {
		return domain.Worker{}, f.workerErr
	}
	return domain.Worker{ID: id}, nil
}

func (f *fakeOrch) Workers(context.Context, domain.WorkerFilter) ([]domain.Worker, error) {
	return f.workers, nil
}

func (f *fakeOrch) QueueLen(context.Context) (int, error) {
	return f.queueLen, f.queueErr
}

type fakeArchive struct {
	task domain.Task
	err  error
}

func (f *fakeArchive) GetByID(context.Context, uuid.UUID) (domain.Task, error) {
	return f.task, f.err
}

func (f *fakeArchive) ListRecent(context.Context, repo.TaskFilter) ([]domain.Task, error) {
	return []domain.Task{f.task}, f.err
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return resp.Data
}

func errorCode(t *testing.T, body []byte) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error %s: %v", body, err)
	}
	return resp.Error.Code
}

// --- Tasks ---

func TestSubmitTask(t *testing.T) {
	orch := &fakeOrch{}
	server := newServer(t, Config{Orchestrator: orch})

	prio := 3
	status, body := do(t, http.MethodPost, server.URL+"/api/v1/tasks", SubmitTaskRequest{
		Kind:       domain.TaskKindImage,
		Priority:   &prio,
		Parameters: map[string]any{"prompt": "a lighthouse"},
		Strategy:   domain.StrategyConfig{Kind: domain.StrategyLeastLoaded},
	})
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", status, body)
	}

	task := decodeData[TaskResponse](t, body)
	if task.Status != domain.TaskStatusQueued || task.Priority != 3 {
		t.Errorf("task = %+v", task)
	}
	if len(orch.submitted) != 1 || orch.submitted[0].Strategy.Kind != domain.StrategyLeastLoaded {
		t.Errorf("submitted = %+v", orch.submitted)
	}
}

func TestSubmitTask_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{"admission", fmt.Errorf("%w: too big", dispatcher.ErrAdmissionRejected), http.StatusUnprocessableEntity, ErrCodeAdmissionRejected},
		{"invalid", fmt.Errorf("%w: unknown kind", dispatcher.ErrInvalidRequest), http.StatusBadRequest, ErrCodeBadRequest},
		{"stopped", dispatcher.ErrDispatcherStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, Config{Orchestrator: &fakeOrch{submitErr: tt.err}})
			status, body := do(t, http.MethodPost, server.URL+"/api/v1/tasks", SubmitTaskRequest{Kind: domain.TaskKindImage})
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if code := errorCode(t, body); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestSubmitTask_BadBody(t *testing.T) {
	server := newServer(t, Config{Orchestrator: &fakeOrch{}})

	resp, err := http.Post(server.URL+"/api/v1/tasks", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetTask_FallsBackToArchive(t *testing.T) {
	id := uuid.New()
	archived := domain.Task{ID: id, Status: domain.TaskStatusSucceeded, LastWorkerID: "gpu-a"}

	server := newServer(t, Config{
		Orchestrator: &fakeOrch{taskErr: dispatcher.ErrTaskNotFound},
		Archive:      &fakeArchive{task: archived},
	})

	status, body := do(t, http.MethodGet, server.URL+"/api/v1/tasks/"+id.String(), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d (%s)", status, body)
	}
	task := decodeData[TaskResponse](t, body)
	if task.ID != id || task.WorkerID != "gpu-a" {
		t.Errorf("task = %+v", task)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		archive TaskArchive
	}{
		{"no archive", nil},
		{"not archived", &fakeArchive{err: repo.ErrNotFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, Config{
				Orchestrator: &fakeOrch{taskErr: dispatcher.ErrTaskNotFound},
				Archive:      tt.archive,
			})
			status, _ := do(t, http.MethodGet, server.URL+"/api/v1/tasks/"+uuid.NewString(), nil)
			if status != http.StatusNotFound {
				t.Errorf("status = %d, want 404", status)
			}
		})
	}

	server := newServer(t, Config{Orchestrator: &fakeOrch{}})
	if status, _ := do(t, http.MethodGet, server.URL+"/api/v1/tasks/not-a-uuid", nil); status != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", status)
	}
}

func TestCancelTask(t *testing.T) {
	server := newServer(t, Config{Orchestrator: &fakeOrch{}})
	status, body := do(t, http.MethodPost, server.URL+"/api/v1/tasks/"+uuid.NewString()+"/cancel", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d (%s)", status, body)
	}
	if task := decodeData[TaskResponse](t, body); task.Status != domain.TaskStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", task.Status)
	}

	finished := newServer(t, Config{Orchestrator: &fakeOrch{cancelErr: dispatcher.ErrTaskFinished}})
	status, body = do(t, http.MethodPost, finished.URL+"/api/v1/tasks/"+uuid.NewString()+"/cancel", nil)
	if status != http.StatusConflict || errorCode(t, body) != ErrCodeConflict {
		t.Errorf("finished task cancel = %d %s, want 409 CONFLICT", status, body)
	}
}

func TestListTasks(t *testing.T) {
	orch := &fakeOrch{tasks: []domain.Task{{ID: uuid.New(), Status: domain.TaskStatusRunning}}}
	server := newServer(t, Config{Orchestrator: orch})

	status, body := do(t, http.MethodGet, server.URL+"/api/v1/tasks?status=RUNNING&worker_id=gpu-a&limit=5", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d (%s)", status, body)
	}
	if orch.taskFilter.Status != domain.TaskStatusRunning || orch.taskFilter.WorkerID != "gpu-a" || orch.taskFilter.Limit != 5 {
		t.Errorf("filter = %+v", orch.taskFilter)
	}

	var list struct {
		Data  []TaskResponse `json:"data"`
		Total int            `json:"total"`
	}
	json.Unmarshal(body, &list)
	if list.Total != 1 || len(list.Data) != 1 {
		t.Errorf("list = %+v", list)
	}

	for _, query := range []string{"status=DONE", "limit=-1", "source=cache"} {
		if status, _ := do(t, http.MethodGet, server.URL+"/api/v1/tasks?"+query, nil); status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, status)
		}
	}
	if status, _ := do(t, http.MethodGet, server.URL+"/api/v1/tasks?source=archive", nil); status != http.StatusServiceUnavailable {
		t.Errorf("archive without repo: status = %d, want 503", status)
	}
}

// --- Workers ---

func TestWorkers_Errors(t *testing.T) {
	server := newServer(t, Config{Orchestrator: &fakeOrch{
		workerErr:   fmt.Errorf("%w: gpu-x", registry.ErrWorkerNotFound),
		registerErr: fmt.Errorf("%w: gpu-a", registry.ErrWorkerExists),
	}})

	if status, _ := do(t, http.MethodGet, server.URL+"/api/v1/workers/gpu-x", nil); status != http.StatusNotFound {
		t.Errorf("get missing: status = %d, want 404", status)
	}
	if status, _ := do(t, http.MethodDelete, server.URL+"/api/v1/workers/gpu-x", nil); status != http.StatusNotFound {
		t.Errorf("delete missing: status = %d, want 404", status)
	}
	status, _ := do(t, http.MethodPost, server.URL+"/api/v1/workers", RegisterWorkerRequest{
		ID: "gpu-a", Endpoint: "http://gpu-a", Kind: domain.WorkerKindRemote,
	})
	if status != http.StatusConflict {
		t.Errorf("duplicate register: status = %d, want 409", status)
	}
	if status, _ := do(t, http.MethodGet, server.URL+"/api/v1/workers?online=maybe", nil); status != http.StatusBadRequest {
		t.Errorf("bad flag: status = %d, want 400", status)
	}
}

// --- Health ---

func TestHealthz(t *testing.T) {
	server := newServer(t, Config{Orchestrator: &fakeOrch{}})
	if status, body := do(t, http.MethodGet, server.URL+"/healthz", nil); status != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", status, body)
	}

	stopped := newServer(t, Config{Orchestrator: &fakeOrch{queueErr: dispatcher.ErrDispatcherStopped}})
	if status, _ := do(t, http.MethodGet, stopped.URL+"/healthz", nil); status != http.StatusServiceUnavailable {
		t.Errorf("stopped healthz = %d, want 503", status)
	}
}

// --- Middleware ---

type httpCounter struct {
	mu    sync.Mutex
	codes []int
}

func (c *httpCounter) ObserveHTTP(_ string, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
}

func TestMiddleware_RecordsStatusAndRecovers(t *testing.T) {
	counter := &httpCounter{}
	handler := Chain(Recovery(nopLogger()), Metrics(counter))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		NotFound(w, "nothing here")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic code = %d, want 500", rec.Code)
	}

	if len(counter.codes) != 1 || counter.codes[0] != http.StatusNotFound {
		t.Errorf("observed codes = %v, want [404]", counter.codes)
	}
}

// --- Events ---

func TestEventStream_SSE(t *testing.T) {
	stream := NewEventStream(8, nopLogger())
	server := newServer(t, Config{Orchestrator: &fakeOrch{}, Events: stream})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q", line)
	}

	deadline := time.Now().Add(2 * time.Second)
	for stream.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	id := uuid.New()
	stream.OnTaskCompleted(domain.Task{ID: id, Status: domain.TaskStatusSucceeded})
	stream.OnWorkerChanged(domain.Worker{ID: "gpu-a", Online: true})

	var events []string
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v (events so far %v)", err, events)
		}
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			events = append(events, name)
			data, _ := reader.ReadString('\n')
			if name == EventTask && !strings.Contains(data, id.String()) {
				t.Errorf("task event data = %q, want task id", data)
			}
		}
	}

	if events[0] != EventTask || events[1] != EventWorker {
		t.Errorf("events = %v, want [task worker]", events)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for stream.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if stream.Clients() != 0 {
		t.Error("client not removed after disconnect")
	}
}

func TestEventStream_SlowClientDrops(t *testing.T) {
	stream := NewEventStream(1, nopLogger())
	id, _ := stream.subscribe()
	defer stream.unsubscribe(id)

	stream.OnStatsUpdated(domain.StatsSnapshot{})
	stream.OnStatsUpdated(domain.StatsSnapshot{})
	stream.OnStatsUpdated(domain.StatsSnapshot{})

	if got := stream.Dropped(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

// --- End to end ---

// gpuWorker — httptest-сервер, имитирующий удалённый GPU-воркер.
func gpuWorker(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"online": true, "vram_total_gb": 24, "vram_free_gb": 20}`))
	})
	mux.HandleFunc("POST /v1/generate/image", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"status": "success", "result": {"images": ["aW1n"], "generation_time_seconds": 0.02}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestEndToEnd_SubmitThroughAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := nopLogger()
	hub := observer.NewHub(observer.HubConfig{Logger: logger})
	agg, err := stats.New(stats.Config{Cadence: "off", Observer: hub, Logger: logger})
	if err != nil {
		t.Fatalf("stats.New: %v", err)
	}

	adapters := transport.DefaultRegistry(nil)
	d, err := dispatcher.New(dispatcher.Config{Adapters: adapters, Events: agg, Observer: hub, Logger: logger})
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}
	monitor := health.New(health.Config{Target: d, Adapters: adapters, Logger: logger})

	stream := NewEventStream(16, logger)
	hub.Subscribe(stream)

	hub.Start(ctx)
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("agg.Start: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("d.Start: %v", err)
	}
	defer func() {
		d.Stop()
		agg.Stop()
		hub.Stop()
	}()

	server := newServer(t, Config{Orchestrator: d, Stats: agg, Prober: monitor, Events: stream, Logger: logger})
	worker := gpuWorker(t)

	// Регистрация + немедленный probe
	status, body := do(t, http.MethodPost, server.URL+"/api/v1/workers", RegisterWorkerRequest{
		ID: "gpu-a", Endpoint: worker.URL, Kind: domain.WorkerKindRemote,
	})
	if status != http.StatusCreated {
		t.Fatalf("register: %d %s", status, body)
	}
	if w := decodeData[WorkerResponse](t, body); !w.Online || w.TotalCapacityUnits != 24 {
		t.Fatalf("registered worker = %+v, want online with 24 units", w)
	}

	// Ни один воркер не вместит 48 единиц
	status, body = do(t, http.MethodPost, server.URL+"/api/v1/tasks", SubmitTaskRequest{
		Kind: domain.TaskKindVideo, RequiredCapacityUnits: 48,
	})
	if status != http.StatusUnprocessableEntity || errorCode(t, body) != ErrCodeAdmissionRejected {
		t.Fatalf("oversized task = %d %s, want 422 ADMISSION_REJECTED", status, body)
	}

	status, body = do(t, http.MethodPost, server.URL+"/api/v1/tasks", SubmitTaskRequest{
		Kind: domain.TaskKindImage, Parameters: map[string]any{"prompt": "fox"},
	})
	if status != http.StatusAccepted {
		t.Fatalf("submit: %d %s", status, body)
	}
	submitted := decodeData[TaskResponse](t, body)

	var task TaskResponse
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body = do(t, http.MethodGet, server.URL+"/api/v1/tasks/"+submitted.ID.String(), nil)
		task = decodeData[TaskResponse](t, body)
		if task.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if task.Status != domain.TaskStatusSucceeded {
		t.Fatalf("task status = %s (%s), want SUCCEEDED", task.Status, task.Error)
	}
	if task.WorkerID != "gpu-a" || task.Result == nil || len(task.Result.Artifacts) != 1 {
		t.Errorf("task = %+v", task)
	}

	// Статистика догоняет событие завершения
	var snapshot StatsResponse
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body = do(t, http.MethodGet, server.URL+"/api/v1/stats", nil)
		snapshot = decodeData[StatsResponse](t, body)
		if snapshot.Counts[domain.TaskStatusSucceeded] == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snapshot.Counts[domain.TaskStatusSucceeded] != 1 || snapshot.SuccessRate != 1 {
		t.Errorf("stats = %+v, want one succeeded task", snapshot)
	}

	status, body = do(t, http.MethodPost, server.URL+"/api/v1/tasks/"+submitted.ID.String()+"/cancel", nil)
	if status != http.StatusConflict {
		t.Errorf("cancel finished task = %d %s, want 409", status, body)
	}

	status, _ = do(t, http.MethodDelete, server.URL+"/api/v1/workers/gpu-a", nil)
	if status != http.StatusOK {
		t.Errorf("unregister = %d, want 200", status)
	}
}
