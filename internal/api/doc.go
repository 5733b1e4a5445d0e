// Package api содержит HTTP API оркестратора.
//
// Структура:
//   - handler.go        — Handler с зависимостями (Dispatcher, статистика, архив)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery, metrics)
//   - response.go       — унифицированные JSON-ответы и отображение ошибок
//   - dto.go            — Data Transfer Objects
//   - task_handler.go   — /tasks
//   - worker_handler.go — /workers
//   - stats_handler.go  — /stats, /healthz
//   - events.go         — /events (Server-Sent Events)
package api
