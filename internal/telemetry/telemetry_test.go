package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Atelier/internal/domain"
)

// --- Logging ---

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithWorkerID(WithTaskID(NewLogger(&buf, "json", slog.LevelInfo), "t-1"), "gpu-a")
	logger.Info("dispatched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["task_id"] != "t-1" || entry["worker_id"] != "gpu-a" {
		t.Errorf("entry = %v, want task_id and worker_id attributes", entry)
	}
}

func TestNewLogger_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "TEXT", slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at WARN level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("text output = %q, want msg=shown", out)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Metrics ---

func TestMetrics_TaskCompleted(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	started := time.Now().Add(-3 * time.Second)
	finished := started.Add(2 * time.Second)
	m.OnTaskCompleted(domain.Task{
		Kind:       domain.TaskKindImage,
		Status:     domain.TaskStatusSucceeded,
		StartedAt:  &started,
		FinishedAt: &finished,
	})
	m.OnTaskCompleted(domain.Task{Kind: domain.TaskKindVideo, Status: domain.TaskStatusFailed})

	if got := testutil.ToFloat64(m.tasksCompleted.WithLabelValues("image", "SUCCEEDED")); got != 1 {
		t.Errorf("image succeeded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasksCompleted.WithLabelValues("video", "FAILED")); got != 1 {
		t.Errorf("video failed = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.generationDuration); got != 1 {
		t.Errorf("generation histogram series = %d, want 1", got)
	}
}

func TestMetrics_WorkerAndStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.OnWorkerChanged(domain.Worker{
		ID:                "gpu-a",
		Kind:              domain.WorkerKindRemote,
		Online:            true,
		Busy:              true,
		FreeCapacityUnits: 12,
		ReservedUnits:     4,
	})
	m.OnStatsUpdated(domain.StatsSnapshot{TasksPerSecond: 0.5, SuccessRate: 0.75, DroppedEvents: 3})

	labels := []string{"gpu-a", string(domain.WorkerKindRemote)}
	if got := testutil.ToFloat64(m.workerOnline.WithLabelValues(labels...)); got != 1 {
		t.Errorf("worker_online = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workerAvailable.WithLabelValues(labels...)); got != 8 {
		t.Errorf("worker_available_units = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.successRate); got != 0.75 {
		t.Errorf("success_rate = %v, want 0.75", got)
	}
	if got := testutil.ToFloat64(m.droppedEvents); got != 3 {
		t.Errorf("stats_dropped_events = %v, want 3", got)
	}

	m.OnWorkerChanged(domain.Worker{ID: "gpu-a", Kind: domain.WorkerKindRemote})
	if got := testutil.ToFloat64(m.workerOnline.WithLabelValues(labels...)); got != 0 {
		t.Errorf("worker_online after change = %v, want 0", got)
	}
}

func TestMetrics_ObserveHTTP(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveHTTP("GET", 200)
	m.ObserveHTTP("GET", 200)
	m.ObserveHTTP("POST", 422)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("GET 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "422")); got != 1 {
		t.Errorf("POST 422 = %v, want 1", got)
	}
}
