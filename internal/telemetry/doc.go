// Package telemetry обеспечивает наблюдаемость intent-сервиса.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики обработки сообщений
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
