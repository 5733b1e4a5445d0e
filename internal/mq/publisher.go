package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Atelier/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeGenerationRequest MessageType = "generation.request"
	MessageTypeTaskCompleted     MessageType = "task.completed"
	MessageTypeWorkerChanged     MessageType = "worker.changed"
	MessageTypeStatsUpdated      MessageType = "stats.updated"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// GenerationRequestPayload — заявка на генерацию из внешней системы.
type GenerationRequestPayload struct {
	// RequestID — идентификатор заявки у отправителя; возвращается
	// в task.completed для корреляции.
	RequestID             string                `json:"request_id,omitempty"`
	Kind                  domain.TaskKind       `json:"kind"`
	RequiredCapacityUnits float64               `json:"required_capacity_units,omitempty"`
	Priority              *int                  `json:"priority,omitempty"`
	Parameters            map[string]any        `json:"parameters,omitempty"`
	Strategy              domain.StrategyConfig `json:"strategy,omitempty"`
}

// TaskCompletedPayload — задача завершена (или заявка отклонена).
type TaskCompletedPayload struct {
	RequestID string      `json:"request_id,omitempty"`
	Task      domain.Task `json:"task"`
}

// WorkerChangedPayload — изменился снимок воркера.
type WorkerChangedPayload struct {
	Worker domain.Worker `json:"worker"`
}

// StatsUpdatedPayload — новая сводка статистики.
type StatsUpdatedPayload struct {
	Stats domain.StatsSnapshot `json:"stats"`
}

// Publisher публикует JSON-сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// NewMessage упаковывает payload в конверт.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now(),
	}, nil
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJSON упаковывает payload и публикует его.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}

// PublishGenerationRequest ставит заявку в generation.requests.
// Используется CLI и тестовыми стендами.
func (p *Publisher) PublishGenerationRequest(ctx context.Context, payload GenerationRequestPayload) error {
	return p.PublishJSON(ctx, ExchangeGeneration, RoutingKeyRequest, MessageTypeGenerationRequest, payload)
}
