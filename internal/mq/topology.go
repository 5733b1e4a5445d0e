package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeGeneration Exchange = "atelier.generation"
	ExchangeEvents     Exchange = "atelier.events"
	ExchangeDLQ        Exchange = "atelier.dlq"
)

// Queues — имена очередей.
const (
	QueueGenerationRequests Queue = "generation.requests"
	QueueDLQGeneration      Queue = "dlq.generation"
)

// Routing keys.
const (
	RoutingKeyRequest       RoutingKey = "request"
	RoutingKeyTaskCompleted RoutingKey = "task.completed"
	RoutingKeyWorkerChanged RoutingKey = "worker.changed"
	RoutingKeyStatsUpdated  RoutingKey = "stats.updated"
	RoutingKeyDLQGeneration RoutingKey = "generation"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Объявления идемпотентны: повторный вызов с теми же параметрами безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeGeneration, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Нераспознанные заявки уходят в DLQ
		{QueueGenerationRequests, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQGeneration),
		}},
		{QueueDLQGeneration, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// atelier.events не имеет собственных очередей: подписчики (редактор
// workflow, дашборды) привязывают свои очереди по нужным ключам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueGenerationRequests, RoutingKeyRequest, ExchangeGeneration},
		{QueueDLQGeneration, RoutingKeyDLQGeneration, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Atelier RabbitMQ Topology:

    atelier.generation (direct)
    └── generation.requests [routing: request]
            Consumer: Orchestrator (RequestConsumer)
            DLQ: dlq.generation

    atelier.events (topic)
    ├── task.completed
    ├── worker.changed
    └── stats.updated
            Publisher: Orchestrator (EventPublisher)

    atelier.dlq (direct)
    └── dlq.generation [routing: generation]
            Manual processing
  `
}
