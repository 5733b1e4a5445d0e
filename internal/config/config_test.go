package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ATELIER_STRATEGY", "ATELIER_PROBE_INTERVAL", "ORCH_PORT", "DB_URL", "RABBITMQ_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strategy.Kind != domain.StrategyAuto {
		t.Errorf("strategy = %q, want auto", cfg.Strategy.Kind)
	}
	if cfg.Port != "8083" {
		t.Errorf("port = %q, want 8083", cfg.Port)
	}
	if cfg.ProbeInterval != 0 {
		t.Errorf("probe interval = %v, want 0 (component default)", cfg.ProbeInterval)
	}
}

func TestLoad_Values(t *testing.T) {
	t.Setenv("ATELIER_STRATEGY", "priority")
	t.Setenv("ATELIER_PRIORITY_ORDER", "gpu-b, gpu-a ,")
	t.Setenv("ATELIER_PROBE_INTERVAL", "2s")
	t.Setenv("ATELIER_CANCEL_GRACE", "500ms")
	t.Setenv("ATELIER_STATS_CADENCE", "off")
	t.Setenv("ATELIER_IMAGE_UNITS", "6")
	t.Setenv("ATELIER_HISTORY_LIMIT", "50")
	t.Setenv("ORCH_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strategy.Kind != domain.StrategyPriority {
		t.Errorf("strategy = %q, want priority", cfg.Strategy.Kind)
	}
	if len(cfg.Strategy.Order) != 2 || cfg.Strategy.Order[0] != "gpu-b" || cfg.Strategy.Order[1] != "gpu-a" {
		t.Errorf("order = %v, want [gpu-b gpu-a]", cfg.Strategy.Order)
	}
	if cfg.ProbeInterval != 2*time.Second || cfg.CancelGrace != 500*time.Millisecond {
		t.Errorf("durations = %v / %v", cfg.ProbeInterval, cfg.CancelGrace)
	}
	if cfg.StatsCadence != "off" || cfg.ImageUnits != 6 || cfg.HistoryLimit != 50 || cfg.Port != "9090" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ATELIER_STRATEGY", "fastest"},
		{"ATELIER_PROBE_TIMEOUT", "soon"},
		{"ATELIER_VIDEO_UNITS", "-1"},
		{"ATELIER_HISTORY_LIMIT", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Load with %s=%q: err = %v, want ErrInvalid", tt.key, tt.value, err)
			}
		})
	}
}

func TestLoad_PriorityRequiresOrder(t *testing.T) {
	t.Setenv("ATELIER_STRATEGY", "priority")
	t.Setenv("ATELIER_PRIORITY_ORDER", "")

	if _, err := Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

// --- Workers file ---

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workers.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadWorkers(t *testing.T) {
	path := writeFile(t, `[
		{"id": "local", "name": "Workstation", "endpoint": "http://127.0.0.1:7860", "kind": "local-render-server"},
		{"id": "gpu-a", "endpoint": "http://gpu-a:9000", "kind": "remote-gpu-worker", "total_capacity_units": 24}
	]`)

	workers, err := LoadWorkers(path)
	if err != nil {
		t.Fatalf("LoadWorkers: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("got %d workers, want 2", len(workers))
	}
	if workers[0].Kind != domain.WorkerKindLocal || workers[1].TotalCapacityUnits != 24 {
		t.Errorf("workers = %+v", workers)
	}
}

func TestLoadWorkers_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{`},
		{"empty id", `[{"endpoint": "http://x", "kind": "remote-gpu-worker"}]`},
		{"duplicate", `[{"id": "a", "endpoint": "http://x", "kind": "remote-gpu-worker"}, {"id": "a", "endpoint": "http://y", "kind": "remote-gpu-worker"}]`},
		{"no endpoint", `[{"id": "a", "kind": "remote-gpu-worker"}]`},
		{"unknown kind", `[{"id": "a", "endpoint": "http://x", "kind": "tpu"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadWorkers(writeFile(t, tt.content)); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadWorkers_MissingFile(t *testing.T) {
	_, err := LoadWorkers(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}
