package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes возвращает роутер admin API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Recovery(h.logger))
	r.Use(Logging(h.logger))

	r.NotFound(h.wrap(func(http.ResponseWriter, *http.Request) error {
		return notFound("route not found")
	}))
	r.MethodNotAllowed(h.wrap(func(http.ResponseWriter, *http.Request) error {
		return &apiError{http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed"}
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Worker
		r.Get("/worker", h.wrap(h.GetWorker))
		r.Post("/worker/wake", h.wrap(h.WakeWorker))
		r.Post("/worker/stop", h.wrap(h.StopWorker))

		// Tasks
		r.Get("/tasks", h.wrap(h.ListTasks))
		r.Post("/tasks", h.wrap(h.SubmitTask))
		r.Get("/tasks/{id}", h.wrap(h.GetTask))

		// Messages
		r.Get("/users/{id}/messages", h.wrap(h.ListUserMessages))
	})

	return r
}
