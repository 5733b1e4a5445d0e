// Package mq связывает оркестратор с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация JSON-сообщений
//   - consumer.go   — потребление сообщений с ack/nack
//   - intake.go     — приём заявок на генерацию (generation.requests → Dispatcher.Submit)
//   - events.go     — EventPublisher: уведомления observer'а → atelier.events
//
// Exchanges:
//   - atelier.generation — заявки на генерацию (direct)
//   - atelier.events     — события оркестратора (topic)
//   - atelier.dlq        — dead letter queue
package mq
