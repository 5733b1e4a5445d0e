package mq

import "errors"

var (
	// ErrNoChannel — AMQP канал недоступен (нет соединения).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrMalformedMessage — сообщение не разобрано; уходит в DLQ без повтора.
	ErrMalformedMessage = errors.New("malformed message")
)
