package observer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shaiso/Atelier/internal/domain"
)

const defaultBufferSize = 256

type notificationKind int

const (
	notifyStats notificationKind = iota
	notifyWorker
	notifyTask
)

type notification struct {
	kind   notificationKind
	stats  domain.StatsSnapshot
	worker domain.Worker
	task   domain.Task
}

// Hub — асинхронная рассылка уведомлений подписчикам.
//
// Hub сам реализует Observer: On* методы не блокируются, уведомление
// кладётся в буфер и доставляется подписчикам из отдельной горутины
// в порядке поступления. При переполнении буфера уведомление
// отбрасывается с предупреждением.
type Hub struct {
	mu        sync.RWMutex
	observers []subscription
	nextID    int

	ch      chan notification
	dropped atomic.Int64

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// HubConfig — конфигурация Hub.
type HubConfig struct {
	BufferSize int // размер буфера уведомлений (default: 256)
	Logger     *slog.Logger
}

// NewHub создаёт Hub.
func NewHub(cfg HubConfig) *Hub {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		ch:     make(chan notification, size),
		logger: logger,
	}
}

type subscription struct {
	id       int
	observer Observer
}

// Subscribe добавляет подписчика и возвращает функцию отписки.
func (h *Hub) Subscribe(o Observer) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.observers = append(h.observers, subscription{id: id, observer: o})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.observers {
			if sub.id == id {
				h.observers = append(h.observers[:i], h.observers[i+1:]...)
				return
			}
		}
	}
}

// Start запускает горутину доставки.
func (h *Hub) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancelFunc = cancel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.loop(ctx)
	}()
}

// Stop останавливает доставку. Уже поставленные в буфер уведомления
// доставляются перед выходом.
func (h *Hub) Stop() {
	if h.cancelFunc != nil {
		h.cancelFunc()
	}
	h.wg.Wait()
}

// Dropped возвращает количество отброшенных уведомлений.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) OnStatsUpdated(snapshot domain.StatsSnapshot) {
	h.enqueue(notification{kind: notifyStats, stats: snapshot})
}

func (h *Hub) OnWorkerChanged(worker domain.Worker) {
	h.enqueue(notification{kind: notifyWorker, worker: worker})
}

func (h *Hub) OnTaskCompleted(task domain.Task) {
	h.enqueue(notification{kind: notifyTask, task: task})
}

func (h *Hub) enqueue(n notification) {
	select {
	case h.ch <- n:
	default:
		dropped := h.dropped.Add(1)
		h.logger.Warn("observer buffer full, notification dropped",
			"kind", n.kind,
			"dropped_total", dropped,
		)
	}
}

func (h *Hub) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.drain()
			return
		case n := <-h.ch:
			h.deliver(n)
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case n := <-h.ch:
			h.deliver(n)
		default:
			return
		}
	}
}

func (h *Hub) deliver(n notification) {
	h.mu.RLock()
	observers := make([]Observer, 0, len(h.observers))
	for _, sub := range h.observers {
		observers = append(observers, sub.observer)
	}
	h.mu.RUnlock()

	for _, o := range observers {
		h.safeCall(o, n)
	}
}

// safeCall изолирует паники подписчиков.
func (h *Hub) safeCall(o Observer, n notification) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("observer panic", "panic", r)
		}
	}()

	switch n.kind {
	case notifyStats:
		o.OnStatsUpdated(n.stats)
	case notifyWorker:
		o.OnWorkerChanged(n.worker)
	case notifyTask:
		o.OnTaskCompleted(n.task)
	}
}
