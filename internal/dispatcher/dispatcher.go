package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/observer"
	"github.com/shaiso/Atelier/internal/registry"
	"github.com/shaiso/Atelier/internal/strategy"
	"github.com/shaiso/Atelier/internal/transport"
)

// Default configuration values.
const (
	defaultCancelGrace  = 10 * time.Second
	defaultTaskTimeout  = 10 * time.Minute
	defaultHistoryLimit = 1000
)

// EventSink получает события жизненного цикла задач.
// OnTaskEvent вызывается из горутины Dispatcher'а и не должен блокироваться.
type EventSink interface {
	OnTaskEvent(event domain.TaskEvent)
}

// Dispatcher — владелец очереди задач и реестра воркеров.
type Dispatcher struct {
	// Состояние ниже изменяется только горутиной loop.
	registry   *registry.Registry
	strategies *strategy.Set
	queue      *taskQueue
	tasks      map[uuid.UUID]*domain.Task
	order      []uuid.UUID // задачи в порядке поступления
	finished   []uuid.UUID // завершённые задачи, старые первыми
	executions map[uuid.UUID]*execution

	// Collaborators
	adapters  *transport.Registry
	estimator Estimator
	events    EventSink
	observer  observer.Observer

	// Configuration
	defaultStrategy domain.StrategyConfig
	cancelGrace     time.Duration
	taskTimeout     time.Duration
	historyLimit    int

	// Mailbox
	ops  chan func()
	done chan struct{}

	// Lifecycle
	logger     *slog.Logger
	runCtx     context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Adapters — транспортные адаптеры по типу воркера (обязательно).
	Adapters *transport.Registry

	// Strategy — стратегия сессии по умолчанию (default: auto).
	Strategy domain.StrategyConfig

	// Estimator — оценка ёмкости для запросов без RequiredCapacityUnits
	// (default: BaseEstimator{}).
	Estimator Estimator

	// Events — получатель событий задач (обычно stats.Aggregator).
	Events EventSink

	// Observer — получатель уведомлений о воркерах и завершённых задачах.
	Observer observer.Observer

	CancelGrace  time.Duration // ожидание подтверждения abort (default: 10s)
	TaskTimeout  time.Duration // таймаут одной генерации (default: 10m)
	HistoryLimit int           // сколько завершённых задач хранить (default: 1000)

	Logger *slog.Logger
}

// New создаёт Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("%w: adapters registry is required", ErrInvalidConfig)
	}

	defaultStrategy := cfg.Strategy
	if defaultStrategy.IsZero() {
		defaultStrategy = domain.StrategyConfig{Kind: domain.StrategyAuto}
	}
	if err := defaultStrategy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cancelGrace := cfg.CancelGrace
	if cancelGrace <= 0 {
		cancelGrace = defaultCancelGrace
	}

	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	estimator := cfg.Estimator
	if estimator == nil {
		estimator = BaseEstimator{}
	}

	obs := cfg.Observer
	if obs == nil {
		obs = observer.Nop{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		registry:        registry.New(),
		strategies:      strategy.NewSet(),
		queue:           newTaskQueue(),
		tasks:           make(map[uuid.UUID]*domain.Task),
		executions:      make(map[uuid.UUID]*execution),
		adapters:        cfg.Adapters,
		estimator:       estimator,
		events:          cfg.Events,
		observer:        obs,
		defaultStrategy: defaultStrategy.Clone(),
		cancelGrace:     cancelGrace,
		taskTimeout:     taskTimeout,
		historyLimit:    historyLimit,
		ops:             make(chan func()),
		done:            make(chan struct{}),
		logger:          logger,
	}, nil
}

// Start запускает горутину-владельца.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		d.runCtx = ctx
		d.cancelFunc = cancel

		d.logger.Info("starting dispatcher",
			"strategy", d.defaultStrategy.Kind,
			"cancel_grace", d.cancelGrace,
			"task_timeout", d.taskTimeout,
		)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.loop(ctx)
		}()
	})
	return nil
}

// Stop останавливает Dispatcher и прерывает выполняющиеся генерации.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.stoppedMu.Lock()
		d.stopped = true
		d.stoppedMu.Unlock()

		d.logger.Info("stopping dispatcher...")

		if d.cancelFunc != nil {
			d.cancelFunc()
		} else {
			close(d.done)
		}

		d.wg.Wait()

		d.logger.Info("dispatcher stopped")
	})
}

// IsStopped проверяет, остановлен ли Dispatcher.
func (d *Dispatcher) IsStopped() bool {
	d.stoppedMu.RLock()
	defer d.stoppedMu.RUnlock()
	return d.stopped
}

// loop — единственная горутина, изменяющая состояние.
func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	defer d.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-d.ops:
			op()
		}
	}
}

// shutdown прерывает все выполнения. Горутины выполнения сами выйдут
// по отменённому контексту; их результаты больше никто не читает.
func (d *Dispatcher) shutdown() {
	for id, exec := range d.executions {
		exec.stop()
		delete(d.executions, id)
	}
	d.logger.Info("dispatcher loop finished",
		"tasks", len(d.tasks),
		"queued", d.queue.Len(),
	)
}

// call выполняет fn в горутине-владельце и ждёт завершения.
func (d *Dispatcher) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}

	select {
	case d.ops <- op:
	case <-d.done:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Принятая операция выполняется до конца синхронно.
	<-finished
	return nil
}

// post асинхронно отправляет внутреннее сообщение горутине-владельцу.
// Используется горутинами выполнения; после остановки сообщение теряется.
func (d *Dispatcher) post(fn func()) {
	select {
	case d.ops <- fn:
	case <-d.done:
	}
}

// emit публикует событие жизненного цикла задачи.
func (d *Dispatcher) emit(task *domain.Task) {
	typ, ok := domain.EventTypeFor(task.Status)
	if !ok {
		return
	}
	snapshot := task.Snapshot()
	if d.events != nil {
		d.events.OnTaskEvent(domain.TaskEvent{Type: typ, Task: snapshot, At: time.Now()})
	}
	if task.IsFinished() {
		d.observer.OnTaskCompleted(snapshot)
	}
}

// workerChanged уведомляет подписчиков об изменении воркера.
func (d *Dispatcher) workerChanged(w domain.Worker) {
	d.observer.OnWorkerChanged(w)
}

// remember учитывает задачу, перешедшую в финальный статус,
// и вытесняет самые старые завершённые задачи сверх лимита.
func (d *Dispatcher) remember(task *domain.Task) {
	d.finished = append(d.finished, task.ID)
	if len(d.finished) <= d.historyLimit {
		return
	}

	evict := d.finished[0]
	d.finished = d.finished[1:]
	delete(d.tasks, evict)
	for i, id := range d.order {
		if id == evict {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}
