// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go — structured logging через zap
//   - metrics.go — Prometheus метрики
//
// Все процессы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
