package repo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Atelier/internal/domain"
)

type fakeSaver struct {
	saved []domain.Task
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, task domain.Task) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("save called without deadline")
	}
	f.saved = append(f.saved, task)
	return f.err
}

func TestTaskArchive_SavesCompletedTasks(t *testing.T) {
	saver := &fakeSaver{}
	archive := NewTaskArchive(saver, time.Second, nil)

	task := domain.Task{ID: uuid.New(), Status: domain.TaskStatusSucceeded}
	archive.OnTaskCompleted(task)
	archive.OnWorkerChanged(domain.Worker{ID: "gpu-a"})
	archive.OnStatsUpdated(domain.StatsSnapshot{})

	if len(saver.saved) != 1 || saver.saved[0].ID != task.ID {
		t.Fatalf("saved = %+v, want exactly the completed task", saver.saved)
	}
}

func TestTaskArchive_LogsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	archive := NewTaskArchive(&fakeSaver{err: errors.New("connection refused")}, 0, logger)

	archive.OnTaskCompleted(domain.Task{ID: uuid.New(), Status: domain.TaskStatusFailed})

	if !strings.Contains(buf.String(), "failed to archive task") {
		t.Errorf("log = %q, want archive warning", buf.String())
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("nullString(\"\") != nil")
	}
	if p := nullString("gpu-a"); p == nil || *p != "gpu-a" {
		t.Errorf("nullString(gpu-a) = %v", p)
	}
}

// --- PostgreSQL (ATELIER_TEST_DB_URL) ---

func TestRepos_Postgres(t *testing.T) {
	dsn := os.Getenv("ATELIER_TEST_DB_URL")
	if dsn == "" {
		t.Skip("ATELIER_TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	workers := NewWorkerRepo(pool)
	id := "test-" + uuid.NewString()[:8]
	w := domain.Worker{ID: id, Name: "Test", Endpoint: "http://gpu:9000", Kind: domain.WorkerKindRemote, TotalCapacityUnits: 24}
	if err := workers.Upsert(ctx, w); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	listed, err := workers.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if !containsWorker(listed, id) {
		t.Errorf("ListEnabled does not contain %s", id)
	}
	if err := workers.Disable(ctx, id); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := workers.Disable(ctx, "missing-"+id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Disable missing = %v, want ErrNotFound", err)
	}
	listed, _ = workers.ListEnabled(ctx)
	if containsWorker(listed, id) {
		t.Errorf("disabled worker %s still listed", id)
	}

	tasks := NewTaskRepo(pool)
	prio := 1
	task := domain.NewTask(domain.TaskKindImage, 4, &prio, map[string]any{"prompt": "x"}, domain.StrategyConfig{Kind: domain.StrategyAuto})
	if err := tasks.Save(ctx, task.Snapshot()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Save queued task = %v, want ErrInvalidState", err)
	}
	_ = task.MarkDispatched(id)
	_ = task.MarkRunning()
	_ = task.MarkSucceeded(domain.Result{Artifacts: []string{"img"}, GenerationSeconds: 1.5})
	if err := tasks.Save(ctx, task.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.TaskStatusSucceeded || got.LastWorkerID != id || got.Result == nil {
		t.Errorf("archived task = %+v", got)
	}
	if _, err := tasks.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID missing = %v, want ErrNotFound", err)
	}

	recent, err := tasks.ListRecent(ctx, TaskFilter{WorkerID: id})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != task.ID {
		t.Errorf("ListRecent = %d tasks, want the saved one", len(recent))
	}
}

func containsWorker(workers []domain.Worker, id string) bool {
	for _, w := range workers {
		if w.ID == id {
			return true
		}
	}
	return false
}
