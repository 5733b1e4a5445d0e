// Package telemetry обеспечивает наблюдаемость оркестратора.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (реализует observer.Observer)
//
// Метрики экспортируются на /metrics endpoint.
package telemetry
