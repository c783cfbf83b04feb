package api

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/worker"
)

// WorkerControl — управление воркером. Реализуется worker.Worker.
type WorkerControl interface {
	Status() worker.Status
	Wake() bool
	Stop()
}

// TaskStore — tasks ресурса. Реализуется repo.TaskRepo.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	FindActionable(ctx context.Context, resourceID uuid.UUID, statuses []domain.TaskStatus) ([]domain.Task, error)
	ListByStatus(ctx context.Context, resourceID uuid.UUID, status domain.TaskStatus, limit int) ([]domain.Task, error)
	CountByStatus(ctx context.Context, resourceID uuid.UUID) (map[domain.TaskStatus]int, error)
}

// MessageReader — уведомления пользователей. Реализуется repo.MessageRepo.
type MessageReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Message, error)
}

// SubmitAnnouncer сообщает воркерам ресурса о новой task.
// Реализуется mq.Publisher.
type SubmitAnnouncer interface {
	PublishTaskSubmitted(ctx context.Context, resourceID, taskID uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	worker     WorkerControl
	tasks      TaskStore
	messages   MessageReader
	announcer  SubmitAnnouncer
	resourceID uuid.UUID
	logger     *zap.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Worker   WorkerControl
	Tasks    TaskStore
	Messages MessageReader

	// Announcer — опционально. Без него новая task будит только этот воркер.
	Announcer SubmitAnnouncer

	ResourceID uuid.UUID
	Logger     *zap.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		worker:     cfg.Worker,
		tasks:      cfg.Tasks,
		messages:   cfg.Messages,
		announcer:  cfg.Announcer,
		resourceID: cfg.ResourceID,
		logger:     logger.Named("api"),
	}
}
