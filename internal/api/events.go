package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
)

// Имена событий потока.
const (
	EventStats  = "stats"
	EventWorker = "worker"
	EventTask   = "task"
)

const (
	defaultClientBuffer   = 64
	defaultHeartbeatEvery = 15 * time.Second
)

// streamEvent — одно событие SSE.
type streamEvent struct {
	name string
	data []byte
}

// EventStream — observer.Observer, транслирующий уведомления клиентам SSE.
//
// У каждого клиента свой буфер; медленный клиент теряет события,
// но не задерживает остальных.
type EventStream struct {
	mu      sync.Mutex
	clients map[uint64]chan streamEvent
	nextID  uint64
	dropped atomic.Int64

	buffer    int
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventStream создаёт EventStream. buffer <= 0 означает 64 события на клиента.
func NewEventStream(buffer int, logger *slog.Logger) *EventStream {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		clients:   make(map[uint64]chan streamEvent),
		buffer:    buffer,
		heartbeat: defaultHeartbeatEvery,
		logger:    logger,
	}
}

func (s *EventStream) OnStatsUpdated(snapshot domain.StatsSnapshot) {
	s.broadcast(EventStats, StatsFromDomain(snapshot, 0))
}

func (s *EventStream) OnWorkerChanged(worker domain.Worker) {
	s.broadcast(EventWorker, WorkerFromDomain(worker))
}

func (s *EventStream) OnTaskCompleted(task domain.Task) {
	s.broadcast(EventTask, TaskFromDomain(task))
}

// Clients возвращает количество подключённых клиентов.
func (s *EventStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped возвращает количество событий, не доставленных медленным клиентам.
func (s *EventStream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *EventStream) broadcast(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal stream event", "event", name, "error", err)
		return
	}
	ev := streamEvent{name: name, data: data}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.clients {
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *EventStream) subscribe() (uint64, <-chan streamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ch := make(chan streamEvent, s.buffer)
	s.clients[s.nextID] = ch
	return s.nextID, ch
}

func (s *EventStream) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

// ServeHTTP отдаёт поток событий до отключения клиента.
// GET /api/v1/events
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, ErrCodeInternalError, "streaming unsupported")
		return
	}

	id, events := s.subscribe()
	defer s.unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
