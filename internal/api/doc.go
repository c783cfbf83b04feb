// Package api содержит admin HTTP API воркера.
//
// Структура:
//   - handler.go        — Handler с DI (управление воркером, tasks, уведомления, logger)
//   - routes.go         — chi-роутер и маршруты
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects
//   - worker_handler.go — /healthz и /api/v1/worker
//   - task_handler.go   — /api/v1/tasks
//   - message_handler.go — /api/v1/users/{id}/messages
//
// Маршруты:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/worker
//	POST /api/v1/worker/wake
//	POST /api/v1/worker/stop
//	GET  /api/v1/tasks?status=&limit=
//	POST /api/v1/tasks
//	GET  /api/v1/tasks/{id}
//	GET  /api/v1/users/{id}/messages?limit=
package api
