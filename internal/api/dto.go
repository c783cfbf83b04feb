package api

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/worker"
)

// Worker DTOs

// WorkerResponse — состояние воркера.
type WorkerResponse struct {
	worker.Status
	Tasks map[string]int `json:"tasks,omitempty"`
}

// WakeResponse — результат POST /worker/wake.
type WakeResponse struct {
	Woke bool `json:"woke"`
}

// StopResponse — результат POST /worker/stop.
type StopResponse struct {
	StopRequested bool `json:"stop_requested"`
}

// Task DTOs

// SubmitTaskRequest — тело POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	UserID uuid.UUID      `json:"user_id"`
	Params map[string]any `json:"params,omitempty"`
}

// Validate проверяет обязательные поля.
func (r *SubmitTaskRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)

	switch {
	case r.Name == "":
		return errors.New("name is required")
	case r.Type == "":
		return errors.New("type is required")
	case r.UserID == uuid.Nil:
		return errors.New("user_id is required")
	}
	return nil
}

// TaskSummary — task в списке.
type TaskSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	ClusterJobID string    `json:"cluster_job_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TaskResponse — task целиком, с журналом.
type TaskResponse struct {
	ID           uuid.UUID         `json:"id"`
	ResourceID   uuid.UUID         `json:"resource_id"`
	UserID       uuid.UUID         `json:"user_id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Status       string            `json:"status"`
	Params       map[string]any    `json:"params,omitempty"`
	ClusterJobID string            `json:"cluster_job_id,omitempty"`
	WorkDir      string            `json:"work_dir,omitempty"`
	Log          []domain.LogEntry `json:"log"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TaskSummaryFromDomain конвертирует domain.Task в TaskSummary.
func TaskSummaryFromDomain(t domain.Task) TaskSummary {
	return TaskSummary{
		ID:           t.ID,
		Name:         t.Name,
		Type:         t.Type,
		Status:       string(t.Status),
		ClusterJobID: t.ClusterJobID,
		UpdatedAt:    t.UpdatedAt,
	}
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task) TaskResponse {
	log := t.Log
	if log == nil {
		log = []domain.LogEntry{}
	}

	return TaskResponse{
		ID:           t.ID,
		ResourceID:   t.ResourceID,
		UserID:       t.UserID,
		Name:         t.Name,
		Type:         t.Type,
		Status:       string(t.Status),
		Params:       t.Params,
		ClusterJobID: t.ClusterJobID,
		WorkDir:      t.WorkDir,
		Log:          log,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Message DTOs

// MessageResponse — уведомление пользователя.
type MessageResponse struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Header      string    `json:"header"`
	Description string    `json:"description,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageFromDomain конвертирует domain.Message в MessageResponse.
func MessageFromDomain(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		Type:        string(m.Type),
		Header:      m.Header,
		Description: m.Description,
		Reference:   m.Reference,
		CreatedAt:   m.CreatedAt,
	}
}
