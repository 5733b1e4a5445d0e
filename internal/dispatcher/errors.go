package dispatcher

import (
	"errors"

	"github.com/shaiso/Atelier/internal/transport"
)

// Ошибки диспетчера.
var (
	// ErrAdmissionRejected — ни один известный воркер не может вместить задачу.
	ErrAdmissionRejected = errors.New("admission rejected")

	// ErrNoEligibleWorker — сейчас нет подходящего воркера, задача ждёт в очереди.
	ErrNoEligibleWorker = errors.New("no eligible worker yet")

	// ErrBackend — адаптер вернул ошибку генерации. Совпадает с
	// transport.ErrBackend, сообщение бэкенда сохраняется как есть.
	ErrBackend = transport.ErrBackend

	// ErrBackendTimeout — генерация не уложилась в таймаут задачи.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrWorkerUnreachable — воркер недоступен, задача на нём завершается ошибкой.
	ErrWorkerUnreachable = errors.New("worker unreachable")

	// ErrCancelledByCaller — задача отменена вызывающей стороной.
	ErrCancelledByCaller = errors.New("cancelled by caller")

	// ErrAbortTimeout — адаптер не подтвердил прерывание за grace-период.
	ErrAbortTimeout = errors.New("abort not confirmed within grace period")

	// ErrWorkerRemoved — воркер удалён из реестра, пока держал задачу.
	ErrWorkerRemoved = errors.New("worker removed")

	// ErrTaskNotFound — задача не найдена.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinished — задача уже в финальном статусе.
	ErrTaskFinished = errors.New("task already finished")

	// ErrInvalidRequest — запрос на генерацию не прошёл валидацию.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidConfig — не задан обязательный компонент.
	ErrInvalidConfig = errors.New("invalid dispatcher config")

	// ErrDispatcherStopped — диспетчер остановлен.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)
