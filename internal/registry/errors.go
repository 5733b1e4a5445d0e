package registry

import "errors"

// Ошибки реестра воркеров.
var (
	// ErrWorkerNotFound — воркер не зарегистрирован.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrWorkerExists — воркер с таким ID уже зарегистрирован.
	ErrWorkerExists = errors.New("worker already registered")

	// ErrInvalidWorker — описание воркера некорректно.
	ErrInvalidWorker = errors.New("invalid worker")

	// ErrWorkerBusy — воркер уже удерживает задачу.
	ErrWorkerBusy = errors.New("worker is busy")
)
