package transport

import "errors"

// Ошибки транспорта.
var (
	// ErrUnreachable — бэкенд недоступен (соединение, DNS, сброс).
	ErrUnreachable = errors.New("backend unreachable")

	// ErrBackend — бэкенд вернул ошибку генерации.
	ErrBackend = errors.New("backend error")

	// ErrAbortUnsupported — бэкенд не поддерживает прерывание.
	ErrAbortUnsupported = errors.New("abort not supported")

	// ErrNoAdapter — нет адаптера для типа воркера.
	ErrNoAdapter = errors.New("no adapter for worker kind")

	// ErrInvalidResponse — ответ бэкенда не удалось разобрать.
	ErrInvalidResponse = errors.New("invalid backend response")
)
