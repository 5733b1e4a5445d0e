package domain

import (
	"errors"
	"testing"
)

func TestTask_Lifecycle(t *testing.T) {
	task := NewTask(TaskKindImage, 4, nil, map[string]any{"prompt": "cat"}, StrategyConfig{Kind: StrategyAuto})

	if task.Status != TaskStatusQueued {
		t.Fatalf("expected QUEUED, got %s", task.Status)
	}
	if task.AssignedWorkerID != "" {
		t.Error("queued task must not have assigned worker")
	}

	if err := task.MarkDispatched("w1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if task.AssignedWorkerID != "w1" || task.DispatchedAt == nil {
		t.Error("dispatched task should have worker and dispatched_at")
	}

	if err := task.MarkRunning(); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := task.MarkSucceeded(Result{Artifacts: []string{"a.png"}, GenerationSeconds: 1.5}); err != nil {
		t.Fatalf("succeeded: %v", err)
	}

	if task.AssignedWorkerID != "" {
		t.Error("finished task must not keep assigned worker")
	}
	if task.LastWorkerID != "w1" {
		t.Errorf("expected last worker w1, got %q", task.LastWorkerID)
	}
	if task.FinishedAt == nil || task.Result == nil {
		t.Error("finished_at and result should be set")
	}
	if task.GenerationTime() < 0 {
		t.Error("generation time should not be negative")
	}
}

func TestTask_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		prep func(*Task)
		do   func(*Task) error
	}{
		{"succeed from queued", func(*Task) {}, func(t *Task) error { return t.MarkSucceeded(Result{}) }},
		{"running from queued", func(*Task) {}, func(t *Task) error { return t.MarkRunning() }},
		{"fail from queued", func(*Task) {}, func(t *Task) error { return t.MarkFailed("x") }},
		{"cancel twice", func(t *Task) { _ = t.MarkCancelled("by caller") }, func(t *Task) error { return t.MarkCancelled("again") }},
		{"dispatch after cancel", func(t *Task) { _ = t.MarkCancelled("by caller") }, func(t *Task) error { return t.MarkDispatched("w1") }},
		{"succeed after cancel", func(t *Task) {
			_ = t.MarkDispatched("w1")
			_ = t.MarkRunning()
			_ = t.MarkCancelled("by caller")
		}, func(t *Task) error { return t.MarkSucceeded(Result{}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask(TaskKindVideo, 8, nil, nil, StrategyConfig{})
			tt.prep(task)
			if err := tt.do(task); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestTask_CancelFromActive(t *testing.T) {
	task := NewTask(TaskKindImage, 2, nil, nil, StrategyConfig{})
	_ = task.MarkDispatched("w1")

	if err := task.MarkCancelled("cancelled by caller"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if task.Status != TaskStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", task.Status)
	}
	if task.AssignedWorkerID != "" {
		t.Error("cancelled task must not keep assigned worker")
	}
}

func TestTask_SnapshotIsIndependent(t *testing.T) {
	prio := 2
	task := NewTask(TaskKindImage, 2, &prio, map[string]any{"prompt": "cat"}, StrategyConfig{Kind: StrategyPriority, Order: []string{"a"}})

	snap := task.Snapshot()
	snap.Parameters["prompt"] = "dog"
	snap.Strategy.Order[0] = "b"
	*snap.Priority = 9

	if task.Parameters["prompt"] != "cat" {
		t.Error("snapshot must not share parameters")
	}
	if task.Strategy.Order[0] != "a" {
		t.Error("snapshot must not share strategy order")
	}
	if task.Tier() != 2 {
		t.Error("snapshot must not share priority")
	}
}

func TestStrategyConfig_Validate(t *testing.T) {
	if err := (StrategyConfig{Kind: StrategyPriority}).Validate(); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("priority without order should fail, got %v", err)
	}
	if err := (StrategyConfig{Kind: "random"}).Validate(); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("unknown kind should fail, got %v", err)
	}
	if err := (StrategyConfig{Kind: StrategyRoundRobin}).Validate(); err != nil {
		t.Errorf("round robin should be valid: %v", err)
	}

	kind, err := ParseStrategyKind("Least-Loaded")
	if err != nil || kind != StrategyLeastLoaded {
		t.Errorf("expected least_loaded, got %s (%v)", kind, err)
	}
}
