package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Atelier/internal/domain"
)

const defaultPublishTimeout = 5 * time.Second

// Sender публикует JSON payload (Publisher).
type Sender interface {
	PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error
}

// EventPublisherConfig — конфигурация EventPublisher.
type EventPublisherConfig struct {
	Sender     Sender
	Correlator *Correlator
	Timeout    time.Duration // таймаут одной публикации (default: 5s)

	// SkipStats — не публиковать stats.updated.
	SkipStats bool

	Logger *slog.Logger
}

// EventPublisher — observer.Observer, публикующий уведомления в atelier.events.
//
// Вызывается из горутины observer.Hub, поэтому публикация синхронная.
// Ошибки публикации логируются и не возвращаются: потеря события
// не должна влиять на оркестратор.
type EventPublisher struct {
	sender     Sender
	correlator *Correlator
	timeout    time.Duration
	skipStats  bool
	logger     *slog.Logger
}

// NewEventPublisher создаёт EventPublisher.
func NewEventPublisher(cfg EventPublisherConfig) *EventPublisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	correlator := cfg.Correlator
	if correlator == nil {
		correlator = NewCorrelator()
	}

	return &EventPublisher{
		sender:     cfg.Sender,
		correlator: correlator,
		timeout:    timeout,
		skipStats:  cfg.SkipStats,
		logger:     logger,
	}
}

func (p *EventPublisher) OnStatsUpdated(snapshot domain.StatsSnapshot) {
	if p.skipStats {
		return
	}
	p.publish(RoutingKeyStatsUpdated, MessageTypeStatsUpdated, StatsUpdatedPayload{Stats: snapshot})
}

func (p *EventPublisher) OnWorkerChanged(worker domain.Worker) {
	p.publish(RoutingKeyWorkerChanged, MessageTypeWorkerChanged, WorkerChangedPayload{Worker: worker})
}

func (p *EventPublisher) OnTaskCompleted(task domain.Task) {
	p.publish(RoutingKeyTaskCompleted, MessageTypeTaskCompleted, TaskCompletedPayload{
		RequestID: p.correlator.Take(task.ID),
		Task:      task,
	})
}

func (p *EventPublisher) publish(key RoutingKey, msgType MessageType, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.sender.PublishJSON(ctx, ExchangeEvents, key, msgType, payload); err != nil {
		p.logger.Warn("failed to publish event", "routing_key", key, "error", err)
	}
}
