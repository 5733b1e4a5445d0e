package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Atelier/internal/dispatcher"
	"github.com/shaiso/Atelier/internal/domain"
)

// Submitter — то, что принимает заявки (Dispatcher).
type Submitter interface {
	Submit(ctx context.Context, req dispatcher.Request) (domain.Task, error)
}

// Correlator связывает задачу с RequestID заявки до её завершения.
type Correlator struct {
	mu   sync.Mutex
	byID map[uuid.UUID]string
}

// NewCorrelator создаёт пустой Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{byID: make(map[uuid.UUID]string)}
}

// Track запоминает RequestID задачи.
func (c *Correlator) Track(taskID uuid.UUID, requestID string) {
	if requestID == "" {
		return
	}
	c.mu.Lock()
	c.byID[taskID] = requestID
	c.mu.Unlock()
}

// Take возвращает и забывает RequestID задачи.
func (c *Correlator) Take(taskID uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.byID[taskID]
	delete(c.byID, taskID)
	return id
}

// Len возвращает количество ожидающих корреляций.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// RequestConsumerConfig — конфигурация RequestConsumer.
type RequestConsumerConfig struct {
	Submitter  Submitter
	Sender     Sender      // для публикации отклонённых заявок
	Correlator *Correlator // nil — без корреляции
	Logger     *slog.Logger
}

// RequestConsumer принимает заявки из generation.requests.
//
// Принятая заявка становится задачей Dispatcher'а. Отклонённая
// (admission, валидация) подтверждается и публикуется как FAILED
// в task.completed, чтобы отправитель не ждал вечно.
type RequestConsumer struct {
	submitter  Submitter
	sender     Sender
	correlator *Correlator
	logger     *slog.Logger
}

// NewRequestConsumer создаёт RequestConsumer.
func NewRequestConsumer(cfg RequestConsumerConfig) *RequestConsumer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	correlator := cfg.Correlator
	if correlator == nil {
		correlator = NewCorrelator()
	}
	return &RequestConsumer{
		submitter:  cfg.Submitter,
		sender:     cfg.Sender,
		correlator: correlator,
		logger:     logger,
	}
}

// Handle — Handler для Consumer'а очереди generation.requests.
func (c *RequestConsumer) Handle(ctx context.Context, d *Delivery) error {
	if d.Message.Type != MessageTypeGenerationRequest {
		return fmt.Errorf("%w: unexpected type %q", ErrMalformedMessage, d.Message.Type)
	}

	payload, err := ParsePayload[GenerationRequestPayload](&d.Message)
	if err != nil {
		return err
	}

	task, err := c.submitter.Submit(ctx, dispatcher.Request{
		Kind:                  payload.Kind,
		RequiredCapacityUnits: payload.RequiredCapacityUnits,
		Priority:              payload.Priority,
		Parameters:            payload.Parameters,
		Strategy:              payload.Strategy,
	})
	switch {
	case err == nil:
		c.correlator.Track(task.ID, payload.RequestID)
		c.logger.Info("generation request accepted",
			"request_id", payload.RequestID,
			"task_id", task.ID,
			"kind", task.Kind,
		)
		return nil

	case errors.Is(err, dispatcher.ErrAdmissionRejected), errors.Is(err, dispatcher.ErrInvalidRequest):
		c.logger.Warn("generation request rejected", "request_id", payload.RequestID, "error", err)
		return c.reject(ctx, payload, err)

	default:
		return fmt.Errorf("submit request %s: %w", payload.RequestID, err)
	}
}

func (c *RequestConsumer) reject(ctx context.Context, payload GenerationRequestPayload, cause error) error {
	if c.sender == nil {
		return nil
	}

	now := time.Now()
	task := domain.Task{
		Kind:                  payload.Kind,
		RequiredCapacityUnits: payload.RequiredCapacityUnits,
		Priority:              payload.Priority,
		Strategy:              payload.Strategy,
		Status:                domain.TaskStatusFailed,
		CreatedAt:             now,
		FinishedAt:            &now,
		Error:                 cause.Error(),
	}

	return c.sender.PublishJSON(ctx, ExchangeEvents, RoutingKeyTaskCompleted, MessageTypeTaskCompleted,
		TaskCompletedPayload{RequestID: payload.RequestID, Task: task})
}
