package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/mq"
	"github.com/shaiso/Bourreau/internal/telemetry"
)

// MessageStore сохраняет уведомления. Реализуется repo.MessageRepo.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
}

// Publisher публикует уведомления в шину. Реализуется mq.Publisher.
type Publisher interface {
	PublishNotification(ctx context.Context, payload mq.NotificationPayload) error
}

// Messenger — отправка уведомлений владельцам tasks.
type Messenger struct {
	store     MessageStore
	publisher Publisher
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// Config — конфигурация Messenger.
type Config struct {
	Store     MessageStore
	Publisher Publisher // опционально
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
}

// New создаёт Messenger.
func New(cfg Config) *Messenger {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	return &Messenger{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger.Named("notify"),
		metrics:   metrics,
	}
}

// Send сохраняет и публикует уведомление.
func (m *Messenger) Send(ctx context.Context, msg domain.Message) {
	log := m.logger.With(
		zap.String("message_id", msg.ID.String()),
		zap.String("user_id", msg.UserID.String()),
		zap.String("type", string(msg.Type)),
	)

	if m.store != nil {
		if err := m.store.Create(ctx, &msg); err != nil {
			m.metrics.Notifications.WithLabelValues("failed").Inc()
			log.Warn("failed to store notification", zap.Error(err))
			return
		}
	}

	if m.publisher != nil {
		err := m.publisher.PublishNotification(ctx, mq.NotificationPayload{
			MessageID:   msg.ID,
			UserID:      msg.UserID,
			Type:        string(msg.Type),
			Header:      msg.Header,
			Description: msg.Description,
			Reference:   msg.Reference,
		})
		if err != nil {
			// Уведомление уже в БД, портал увидит его и без шины.
			log.Warn("failed to publish notification", zap.Error(err))
		}
	}

	m.metrics.Notifications.WithLabelValues(string(msg.Type)).Inc()
	log.Info("notification sent", zap.String("header", msg.Header))
}
