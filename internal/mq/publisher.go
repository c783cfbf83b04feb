package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmitted MessageType = "task.submitted"
	MessageTypeNotification  MessageType = "notification.created"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *zap.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:   conn,
		logger: logger.Named("mq"),
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskSubmittedPayload — payload события о новой task.
type TaskSubmittedPayload struct {
	TaskID     uuid.UUID `json:"task_id"`
	ResourceID uuid.UUID `json:"resource_id"`
}

// NotificationPayload — payload уведомления владельцу task.
type NotificationPayload struct {
	MessageID   uuid.UUID `json:"message_id"`
	UserID      uuid.UUID `json:"user_id"`
	Type        string    `json:"type"`
	Header      string    `json:"header"`
	Description string    `json:"description,omitempty"`
	Reference   string    `json:"reference,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			zap.String("exchange", string(exchange)),
			zap.String("routing_key", string(routingKey)),
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
		)

		return nil
	})
}

// PublishTaskSubmitted публикует событие о новой task на ресурсе.
// Потребитель: воркер ресурса (будит его из idle-sleep).
func (p *Publisher) PublishTaskSubmitted(ctx context.Context, resourceID, taskID uuid.UUID) error {
	msg := NewMessage(MessageTypeTaskSubmitted, TaskSubmittedPayload{
		TaskID:     taskID,
		ResourceID: resourceID,
	})

	return p.Publish(ctx, ExchangeTasks, SubmittedRoutingKey(resourceID), msg)
}

// PublishNotification публикует уведомление владельцу task.
// Потребитель: портал.
func (p *Publisher) PublishNotification(ctx context.Context, payload NotificationPayload) error {
	msg := NewMessage(MessageTypeNotification, payload)

	return p.Publish(ctx, ExchangeNotifications, NotificationRoutingKey(payload.Type), msg)
}

// NewMessage создаёт сообщение с новым ID и текущим временем.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
