package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/telemetry"
	"github.com/shaiso/Atelier/internal/transport"
)

// Default configuration values.
const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 3 * time.Second
)

// Target — владелец реестра воркеров (Dispatcher).
type Target interface {
	Workers(ctx context.Context, filter domain.WorkerFilter) ([]domain.Worker, error)
	ReportProbe(ctx context.Context, id string, status transport.Status, probeErr error) error
	ExpireStale(ctx context.Context, window time.Duration) ([]domain.Worker, error)
}

// Monitor периодически опрашивает воркеров.
type Monitor struct {
	target   Target
	adapters *transport.Registry

	// Configuration
	interval  time.Duration
	timeout   time.Duration
	staleness time.Duration

	// inflight — воркеры, чей probe ещё не завершился.
	inflight   map[string]struct{}
	inflightMu sync.Mutex

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Monitor.
type Config struct {
	Target   Target
	Adapters *transport.Registry

	Interval        time.Duration // интервал опроса (default: 5s)
	Timeout         time.Duration // таймаут одного probe (default: 3s)
	StalenessWindow time.Duration // окно устаревания heartbeat (default: 3 × Interval)

	Logger *slog.Logger
}

// New создаёт Monitor.
func New(cfg Config) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	staleness := cfg.StalenessWindow
	if staleness <= 0 {
		staleness = 3 * interval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		target:    cfg.Target,
		adapters:  cfg.Adapters,
		interval:  interval,
		timeout:   timeout,
		staleness: staleness,
		inflight:  make(map[string]struct{}),
		logger:    logger,
	}
}

// Start запускает цикл опроса.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel

	m.logger.Info("starting health monitor",
		"interval", m.interval,
		"timeout", m.timeout,
		"staleness_window", m.staleness,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает Monitor и ждёт завершения проб.
func (m *Monitor) Stop() {
	m.stoppedMu.Lock()
	m.stopped = true
	m.stoppedMu.Unlock()

	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	m.wg.Wait()

	m.logger.Info("health monitor stopped")
}

// IsStopped проверяет, остановлен ли Monitor.
func (m *Monitor) IsStopped() bool {
	m.stoppedMu.RLock()
	defer m.stoppedMu.RUnlock()
	return m.stopped
}

// pollLoop — цикл опроса.
func (m *Monitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Первый раунд сразу при старте
	m.Round(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Round(ctx)
		}
	}
}

// Round выполняет один раунд: параллельный probe всех воркеров и
// проверку устаревания. Ждёт результатов не дольше таймаута probe.
func (m *Monitor) Round(ctx context.Context) {
	workers, err := m.target.Workers(ctx, domain.WorkerFilter{})
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("failed to list workers", "error", err)
		}
		return
	}

	var round sync.WaitGroup
	for _, w := range workers {
		if !m.acquire(w.ID) {
			m.logger.Debug("previous probe still in flight, skipping", "worker_id", w.ID)
			continue
		}

		round.Add(1)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer round.Done()
			defer m.release(w.ID)
			m.probe(ctx, w)
		}()
	}

	m.waitRound(ctx, &round)

	expired, err := m.target.ExpireStale(ctx, m.staleness)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("failed to expire stale workers", "error", err)
		}
		return
	}
	if len(expired) > 0 {
		m.logger.Debug("stale workers expired", "count", len(expired))
	}
}

// ProbeNow опрашивает один воркер вне расписания (например, сразу после
// регистрации). Возвращает false, если probe этого воркера уже выполняется.
func (m *Monitor) ProbeNow(ctx context.Context, w domain.Worker) bool {
	if !m.acquire(w.ID) {
		return false
	}
	defer m.release(w.ID)

	m.probe(ctx, w)
	return true
}

// waitRound ждёт завершения проб раунда, но не дольше таймаута probe:
// адаптер, игнорирующий ctx, не должен задерживать проверку устаревания.
func (m *Monitor) waitRound(ctx context.Context, round *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		round.Wait()
		close(done)
	}()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// probe опрашивает один воркер и сообщает результат владельцу реестра.
func (m *Monitor) probe(ctx context.Context, w domain.Worker) {
	adapter, err := m.adapters.Get(w.Kind)
	if err != nil {
		m.report(ctx, w.ID, transport.Status{}, err)
		return
	}

	logger := telemetry.WithWorkerID(m.logger, w.ID)
	probeCtx, cancel := context.WithTimeout(telemetry.WithLogger(ctx, logger), m.timeout)
	defer cancel()

	status, err := adapter.Probe(probeCtx, w.Endpoint)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.Debug("probe failed", "endpoint", w.Endpoint, "error", err)
	}
	m.report(ctx, w.ID, status, err)
}

func (m *Monitor) report(ctx context.Context, id string, status transport.Status, probeErr error) {
	if err := m.target.ReportProbe(ctx, id, status, probeErr); err != nil && ctx.Err() == nil {
		m.logger.Error("failed to report probe", "worker_id", id, "error", err)
	}
}

func (m *Monitor) acquire(id string) bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Monitor) release(id string) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	delete(m.inflight, id)
}
