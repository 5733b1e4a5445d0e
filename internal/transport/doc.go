// Package transport переводит генерационные запросы в API конкретных бэкендов.
//
// Все бэкенды реализуют единый контракт Adapter:
//
//	type Adapter interface {
//	    Probe(ctx, endpoint) (Status, error)
//	    GenerateImage(ctx, endpoint, req) (ImageResult, error)
//	    GenerateVideo(ctx, endpoint, req) (VideoResult, error)
//	    Abort(ctx, endpoint, handle) error
//	}
//
// Реализации:
//   - LocalAdapter — локальный render-сервер с WebUI-подобным API
//     (/sdapi/v1/memory, /sdapi/v1/txt2img, /sdapi/v1/txt2vid, /sdapi/v1/interrupt)
//   - RemoteAdapter — удалённый GPU-воркер
//     (/v1/status, /v1/generate/{image,video}, /v1/tasks/{handle}/abort)
//
// Request.OnStart вызывается, когда запрос полностью отправлен бэкенду —
// это подтверждение старта, по которому Dispatcher переводит задачу в RUNNING.
//
// # Ошибки
//
//   - ErrUnreachable — бэкенд недоступен на уровне соединения
//   - ErrBackend — бэкенд ответил ошибкой (сообщение сохраняется как есть)
//   - ErrAbortUnsupported — бэкенд не умеет прерывать задачу
//
// Отмена и таймауты приходят через ctx и возвращаются как ctx.Err().
package transport
