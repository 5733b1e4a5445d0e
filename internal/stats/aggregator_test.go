package stats

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/observer"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) *time.Time {
	t := base.Add(time.Duration(sec) * time.Second)
	return &t
}

// finishedEvent — событие завершённой задачи: dispatched → started → finished.
func finishedEvent(status domain.TaskStatus, worker string, dispatched, started, finished int) domain.TaskEvent {
	typ, _ := domain.EventTypeFor(status)
	return domain.TaskEvent{
		Type: typ,
		Task: domain.Task{
			ID:           uuid.New(),
			Status:       status,
			LastWorkerID: worker,
			DispatchedAt: at(dispatched),
			StartedAt:    at(started),
			FinishedAt:   at(finished),
		},
		At: *at(finished),
	}
}

// --- window ---

func TestWindow_SuccessRate(t *testing.T) {
	w := newWindow(time.Minute, 100)
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 0, 1, 5))
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 5, 6, 10))
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "b", 0, 1, 10))
	w.apply(finishedEvent(domain.TaskStatusFailed, "b", 10, 11, 12))

	snap := w.snapshot(*at(20), 20*time.Second)
	if snap.SuccessRate != 0.75 {
		t.Errorf("expected success rate 0.75, got %v", snap.SuccessRate)
	}
	if snap.Counts[domain.TaskStatusSucceeded] != 3 || snap.Counts[domain.TaskStatusFailed] != 1 {
		t.Errorf("unexpected counts %v", snap.Counts)
	}
}

func TestWindow_SuccessRateWithoutFailures(t *testing.T) {
	w := newWindow(time.Minute, 100)

	empty := w.snapshot(*at(10), 10*time.Second)
	if empty.SuccessRate != 1.0 || empty.TasksPerSecond != 0 || empty.MeanGenerationTime != 0 {
		t.Errorf("empty window must report observed zero state, got %+v", empty)
	}

	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 0, 1, 2))
	w.apply(finishedEvent(domain.TaskStatusCancelled, "a", 2, 3, 4))
	if snap := w.snapshot(*at(10), 10*time.Second); snap.SuccessRate != 1.0 {
		t.Errorf("expected 1.0 without failures, got %v", snap.SuccessRate)
	}
}

func TestWindow_ThroughputAndMeanGenerationTime(t *testing.T) {
	w := newWindow(time.Minute, 100)
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 0, 1, 3))  // 2s
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 3, 4, 8))  // 4s
	w.apply(finishedEvent(domain.TaskStatusFailed, "a", 8, 9, 19))    // не учитывается в среднем
	w.apply(finishedEvent(domain.TaskStatusCancelled, "b", 0, 0, 10)) // считается завершённой

	snap := w.snapshot(*at(20), 20*time.Second)
	if snap.TasksPerSecond != 4.0/20.0 {
		t.Errorf("expected 0.2 tasks/s, got %v", snap.TasksPerSecond)
	}
	if snap.MeanGenerationTime != 3*time.Second {
		t.Errorf("expected mean 3s over succeeded tasks, got %v", snap.MeanGenerationTime)
	}
	if snap.Window != 20*time.Second {
		t.Errorf("expected observed span 20s, got %v", snap.Window)
	}
}

func TestWindow_WorkerUtilization(t *testing.T) {
	w := newWindow(time.Minute, 100)
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 30, 31, 60))

	// Задача b ещё выполняется с 40-й секунды
	w.apply(domain.TaskEvent{
		Type: domain.TaskEventRunning,
		Task: domain.Task{ID: uuid.New(), Status: domain.TaskStatusRunning, LastWorkerID: "b", DispatchedAt: at(40), StartedAt: at(41)},
	})

	snap := w.snapshot(*at(60), time.Minute)
	if len(snap.Workers) != 2 {
		t.Fatalf("expected 2 workers, got %+v", snap.Workers)
	}
	if snap.Workers[0].WorkerID != "a" || snap.Workers[0].Utilization != 0.5 {
		t.Errorf("expected a utilization 0.5, got %+v", snap.Workers[0])
	}
	if got := snap.Workers[1].Utilization; math.Abs(got-20.0/60.0) > 1e-9 {
		t.Errorf("expected b utilization 1/3, got %v", got)
	}
	if snap.Counts[domain.TaskStatusRunning] != 1 {
		t.Errorf("running task must be counted, got %v", snap.Counts)
	}
}

func TestWindow_ExpiresOldTasks(t *testing.T) {
	w := newWindow(10*time.Second, 100)
	w.apply(finishedEvent(domain.TaskStatusFailed, "a", 0, 1, 2))
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 20, 21, 25))

	snap := w.snapshot(*at(30), 10*time.Second)
	if snap.Counts[domain.TaskStatusFailed] != 0 {
		t.Error("task finished before window must be expired")
	}
	if snap.SuccessRate != 1.0 {
		t.Errorf("expired failure must not affect success rate, got %v", snap.SuccessRate)
	}
	if len(w.records) != 1 {
		t.Errorf("expected 1 retained record, got %d", len(w.records))
	}
}

func TestWindow_MaxRecords(t *testing.T) {
	w := newWindow(time.Hour, 2)
	first := finishedEvent(domain.TaskStatusSucceeded, "a", 0, 1, 2)
	w.apply(first)
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 2, 3, 4))
	w.apply(finishedEvent(domain.TaskStatusSucceeded, "a", 4, 5, 6))

	if len(w.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(w.records))
	}
	if _, ok := w.records[first.Task.ID]; ok {
		t.Error("oldest record must be evicted")
	}
}

func TestWindow_EventsUpdateSameTask(t *testing.T) {
	w := newWindow(time.Minute, 100)
	id := uuid.New()
	w.apply(domain.TaskEvent{Type: domain.TaskEventQueued, Task: domain.Task{ID: id, Status: domain.TaskStatusQueued}})
	w.apply(domain.TaskEvent{Type: domain.TaskEventDispatched, Task: domain.Task{ID: id, Status: domain.TaskStatusDispatched, LastWorkerID: "a", DispatchedAt: at(1)}})

	snap := w.snapshot(*at(5), 5*time.Second)
	if snap.Counts[domain.TaskStatusQueued] != 0 || snap.Counts[domain.TaskStatusDispatched] != 1 {
		t.Errorf("task must be counted by last known status, got %v", snap.Counts)
	}
}

// --- Aggregator ---

func newTestAggregator(t *testing.T, cfg Config) *Aggregator {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return a
}

func TestNew_InvalidCadence(t *testing.T) {
	if _, err := New(Config{Cadence: "every now and then"}); !errors.Is(err, ErrInvalidCadence) {
		t.Errorf("expected ErrInvalidCadence, got %v", err)
	}
	if err := ValidateCadence("*/5 * * * * *"); err != nil {
		t.Errorf("seconds expression should be valid: %v", err)
	}
}

func TestAggregator_SnapshotViaMessagePassing(t *testing.T) {
	a := newTestAggregator(t, Config{Cadence: "off"})
	a.Start(context.Background())
	defer a.Stop()

	now := time.Now()
	started := now.Add(-2 * time.Second)
	for range 3 {
		a.OnTaskEvent(domain.TaskEvent{
			Type: domain.TaskEventSucceeded,
			Task: domain.Task{ID: uuid.New(), Status: domain.TaskStatusSucceeded, LastWorkerID: "w1", StartedAt: &started, FinishedAt: &now},
		})
	}
	a.OnTaskEvent(domain.TaskEvent{
		Type: domain.TaskEventFailed,
		Task: domain.Task{ID: uuid.New(), Status: domain.TaskStatusFailed, LastWorkerID: "w1", FinishedAt: &now},
	})

	var snap domain.StatsSnapshot
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		var err error
		snap, err = a.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snap.Counts[domain.TaskStatusFailed] == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if snap.Counts[domain.TaskStatusSucceeded] != 3 || snap.Counts[domain.TaskStatusFailed] != 1 {
		t.Fatalf("unexpected counts %v", snap.Counts)
	}
	if snap.SuccessRate != 0.75 {
		t.Errorf("expected 0.75, got %v", snap.SuccessRate)
	}
	if snap.MeanGenerationTime != 2*time.Second {
		t.Errorf("expected 2s mean, got %v", snap.MeanGenerationTime)
	}
	if snap.TasksPerSecond <= 0 {
		t.Error("observed throughput must be positive")
	}
}

func TestAggregator_OverflowDropsOldest(t *testing.T) {
	a := newTestAggregator(t, Config{BufferSize: 2, Cadence: "off"})

	var ids []uuid.UUID
	for range 5 {
		id := uuid.New()
		ids = append(ids, id)
		a.OnTaskEvent(domain.TaskEvent{Type: domain.TaskEventQueued, Task: domain.Task{ID: id}})
	}

	if a.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", a.Dropped())
	}

	// В буфере остались два самых новых
	first := <-a.events
	second := <-a.events
	if first.Task.ID != ids[3] || second.Task.ID != ids[4] {
		t.Error("buffer must keep the newest events")
	}
}

func TestAggregator_PublishOnEvent(t *testing.T) {
	var (
		mu        sync.Mutex
		snapshots []domain.StatsSnapshot
	)
	a := newTestAggregator(t, Config{
		Cadence:        "off",
		PublishOnEvent: true,
		Observer: observer.Funcs{StatsUpdated: func(s domain.StatsSnapshot) {
			mu.Lock()
			snapshots = append(snapshots, s)
			mu.Unlock()
		}},
	})
	a.Start(context.Background())
	defer a.Stop()

	a.OnTaskEvent(domain.TaskEvent{Type: domain.TaskEventQueued, Task: domain.Task{ID: uuid.New(), Status: domain.TaskStatusQueued}})
	a.OnTaskEvent(domain.TaskEvent{Type: domain.TaskEventQueued, Task: domain.Task{ID: uuid.New(), Status: domain.TaskStatusQueued}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(snapshots)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[1].Counts[domain.TaskStatusQueued] != 2 {
		t.Errorf("expected 2 queued in last snapshot, got %v", snapshots[1].Counts)
	}
}

func TestAggregator_Cadence(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	a := newTestAggregator(t, Config{
		Cadence: "@every 1s",
		Observer: observer.Funcs{StatsUpdated: func(domain.StatsSnapshot) {
			mu.Lock()
			count++
			mu.Unlock()
		}},
	})

	frozen := base.Add(500 * time.Millisecond)
	a.now = func() time.Time { return frozen }
	if d := a.untilNext(); d <= 0 || d > time.Second {
		t.Errorf("next publication must be within 1s, got %v", d)
	}
	a.now = time.Now

	a.Start(context.Background())
	time.Sleep(1300 * time.Millisecond)
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count < 1 {
		t.Errorf("expected periodic publication, got %d", count)
	}
}

func TestAggregator_SnapshotAfterStop(t *testing.T) {
	a := newTestAggregator(t, Config{Cadence: "off"})
	a.Start(context.Background())
	a.Stop()

	if _, err := a.Snapshot(context.Background()); !errors.Is(err, ErrAggregatorStopped) {
		t.Errorf("expected ErrAggregatorStopped, got %v", err)
	}
}
