package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/observer"
)

// Default configuration values.
const (
	defaultWindow     = 5 * time.Minute
	defaultMaxRecords = 10_000
	defaultBufferSize = 1024
	defaultCadence    = "@every 2s"
)

// cadenceParser — парсер расписания публикации.
// Поддерживает дескрипторы (@every 2s) и выражения с секундами.
var cadenceParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCadence проверяет расписание публикации.
func ValidateCadence(spec string) error {
	if _, err := cadenceParser.Parse(spec); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidCadence, spec, err)
	}
	return nil
}

// Aggregator — потребитель событий задач и источник StatsSnapshot.
type Aggregator struct {
	events  chan domain.TaskEvent
	reads   chan chan domain.StatsSnapshot
	dropped atomic.Int64

	window         *window
	cadence        cron.Schedule // nil — публикация по расписанию выключена
	publishOnEvent bool
	observer       observer.Observer
	now            func() time.Time

	// Lifecycle
	logger     *slog.Logger
	startedAt  time.Time
	cancelFunc context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
}

// Config — конфигурация Aggregator.
type Config struct {
	Window     time.Duration // длина скользящего окна (default: 5m)
	MaxRecords int           // максимум задач в окне (default: 10000)
	BufferSize int           // размер буфера событий (default: 1024)

	// Cadence — расписание публикации (cron или @every; default: "@every 2s").
	// "off" выключает публикацию по расписанию.
	Cadence string

	// PublishOnEvent — публиковать снимок после каждого события.
	PublishOnEvent bool

	// Observer — получатель снимков (обычно observer.Hub).
	Observer observer.Observer

	Logger *slog.Logger
}

// New создаёт Aggregator.
func New(cfg Config) (*Aggregator, error) {
	length := cfg.Window
	if length <= 0 {
		length = defaultWindow
	}

	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	var cadence cron.Schedule
	switch cfg.Cadence {
	case "off":
	case "":
		cadence, _ = cadenceParser.Parse(defaultCadence)
	default:
		parsed, err := cadenceParser.Parse(cfg.Cadence)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidCadence, cfg.Cadence, err)
		}
		cadence = parsed
	}

	obs := cfg.Observer
	if obs == nil {
		obs = observer.Nop{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		events:         make(chan domain.TaskEvent, bufferSize),
		reads:          make(chan chan domain.StatsSnapshot),
		window:         newWindow(length, maxRecords),
		cadence:        cadence,
		publishOnEvent: cfg.PublishOnEvent,
		observer:       obs,
		now:            time.Now,
		logger:         logger,
		done:           make(chan struct{}),
	}, nil
}

// OnTaskEvent принимает событие. Никогда не блокируется: при полном
// буфере отбрасывается самое старое событие.
func (a *Aggregator) OnTaskEvent(e domain.TaskEvent) {
	for {
		select {
		case a.events <- e:
			return
		default:
		}

		select {
		case <-a.events:
			dropped := a.dropped.Add(1)
			a.logger.Warn("stats buffer overflow, oldest event dropped",
				"dropped_total", dropped,
				"buffer", cap(a.events),
			)
		default:
		}
	}
}

// Dropped возвращает количество отброшенных событий.
func (a *Aggregator) Dropped() int64 {
	return a.dropped.Load()
}

// Start запускает горутину агрегатора.
func (a *Aggregator) Start(ctx context.Context) error {
	a.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		a.cancelFunc = cancel
		a.startedAt = a.now()

		a.logger.Info("starting stats aggregator",
			"window", a.window.length,
			"publish_on_event", a.publishOnEvent,
			"cadence", a.cadence != nil,
		)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer close(a.done)
			a.loop(ctx)
		}()
	})
	return nil
}

// Stop останавливает агрегатор.
func (a *Aggregator) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.wg.Wait()
	a.logger.Info("stats aggregator stopped", "dropped_events", a.dropped.Load())
}

// Snapshot возвращает текущую сводку.
func (a *Aggregator) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	reply := make(chan domain.StatsSnapshot, 1)
	select {
	case a.reads <- reply:
	case <-a.done:
		return domain.StatsSnapshot{}, ErrAggregatorStopped
	case <-ctx.Done():
		return domain.StatsSnapshot{}, ctx.Err()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return domain.StatsSnapshot{}, ctx.Err()
	}
}

func (a *Aggregator) loop(ctx context.Context) {
	var (
		tick  <-chan time.Time
		timer *time.Timer
	)
	if a.cadence != nil {
		timer = time.NewTimer(a.untilNext())
		defer timer.Stop()
		tick = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case e := <-a.events:
			a.window.apply(e)
			if a.publishOnEvent {
				a.publish()
			}

		case reply := <-a.reads:
			reply <- a.current()

		case <-tick:
			a.publish()
			timer.Reset(a.untilNext())
		}
	}
}

func (a *Aggregator) untilNext() time.Duration {
	now := a.now()
	return max(a.cadence.Next(now).Sub(now), time.Millisecond)
}

func (a *Aggregator) current() domain.StatsSnapshot {
	now := a.now()
	span := min(a.window.length, now.Sub(a.startedAt))
	snap := a.window.snapshot(now, span)
	snap.DroppedEvents = a.dropped.Load()
	return snap
}

func (a *Aggregator) publish() {
	a.observer.OnStatsUpdated(a.current())
}
