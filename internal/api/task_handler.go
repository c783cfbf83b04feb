package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListTasks возвращает tasks ресурса.
// GET /api/v1/tasks?status=...&limit=...
//
// Без status возвращает tasks в actionable-статусах, как их видит цикл воркера.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) error {
	limit, err := parseLimit(r)
	if err != nil {
		return err
	}

	var tasks []domain.Task
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseTaskStatus(raw)
		if !ok {
			return badRequest("unknown status: %s", raw)
		}
		tasks, err = h.tasks.ListByStatus(r.Context(), h.resourceID, status, limit)
	} else {
		tasks, err = h.tasks.FindActionable(r.Context(), h.resourceID, domain.ActionableStatuses())
		if len(tasks) > limit {
			tasks = tasks[:limit]
		}
	}
	if err != nil {
		return err
	}

	result := make([]TaskSummary, len(tasks))
	for i, t := range tasks {
		result[i] = TaskSummaryFromDomain(t)
	}
	return writeList(w, result, len(result))
}

// GetTask возвращает task с журналом.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) error {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return badRequest("invalid task id")
	}

	task, err := h.tasks.GetByID(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("task not found")
	}
	if err != nil {
		return err
	}

	return writeData(w, http.StatusOK, TaskFromDomain(task))
}

// SubmitTask создаёт task в статусе New на ресурсе воркера.
// POST /api/v1/tasks
//
// После записи task воркеры ресурса будятся: через AMQP, если он есть,
// иначе только этот воркер напрямую.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) error {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	if err := req.Validate(); err != nil {
		return badRequest("%v", err)
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:         uuid.New(),
		ResourceID: h.resourceID,
		UserID:     req.UserID,
		Name:       req.Name,
		Type:       req.Type,
		Status:     domain.TaskStatusNew,
		Params:     req.Params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.tasks.Create(r.Context(), task); err != nil {
		return err
	}

	h.announce(r.Context(), task)

	return writeData(w, http.StatusCreated, TaskFromDomain(task))
}

// announce будит воркеры ресурса. Ошибка публикации не ломает запрос:
// task уже записана и будет найдена опросом.
func (h *Handler) announce(ctx context.Context, task *domain.Task) {
	if h.announcer != nil {
		err := h.announcer.PublishTaskSubmitted(ctx, h.resourceID, task.ID)
		if err == nil {
			return
		}
		h.logger.Warn("failed to publish task.submitted, waking local worker",
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
	}
	h.worker.Wake()
}

// parseLimit читает ?limit= с default и верхней границей.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("invalid limit %q", raw)
	}
	return min(n, maxListLimit), nil
}
