package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// errDeliveriesClosed — брокер закрыл поток доставки (разрыв канала).
var errDeliveriesClosed = errors.New("deliveries channel closed")

// Handler — функция обработки сообщения.
// Ошибка означает, что сообщение нужно доставить ещё раз.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Redelivered — сообщение уже доставлялось и не было подтверждено.
	Redelivered bool
}

// Consumer читает одну очередь и передаёт сообщения в Handler.
//
// Подтверждение ручное: успех — ack, ошибка обработчика — одна повторная
// доставка, затем DLQ. Нечитаемое сообщение сразу уходит в DLQ.
type Consumer struct {
	conn     *Connection
	logger   *zap.Logger
	queue    string
	tag      string
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Tag — consumer tag в RabbitMQ (default: сгенерированный брокером).
	Tag string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит брокер (default: 1).
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *zap.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.Named("mq").With(zap.String("queue", cfg.Queue)),
		queue:    cfg.Queue,
		tag:      cfg.Tag,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run потребляет очередь до отмены ctx или закрытия соединения.
//
// После разрыва ждёт, пока Connection восстановится, и подписывается
// заново. Возвращает ctx.Err() при отмене и nil после Connection.Close.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		// Берём сигнал до подписки, чтобы не пропустить восстановление,
		// случившееся между неудачей и ожиданием.
		reconnected := c.conn.Reconnected()

		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Done():
			c.logger.Info("connection closed, consumer stopped")
			return nil
		case <-reconnected:
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

// consumeOnce подписывается на очередь и обрабатывает сообщения,
// пока поток доставки не закроется.
func (c *Consumer) consumeOnce(ctx context.Context) error {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		var err error
		deliveries, err = ch.Consume(
			c.queue, // queue
			c.tag,   // consumer tag
			false,   // auto-ack
			false,   // exclusive
			false,   // no-local
			false,   // no-wait
			nil,     // args
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.queue, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			zap.Error(err),
			zap.ByteString("body", raw.Body),
		)
		c.settle(raw, raw.Nack(false, false), "nack")
		return
	}

	log := c.logger.With(
		zap.String("message_id", msg.ID),
		zap.String("type", string(msg.Type)),
	)
	log.Debug("received message", zap.Bool("redelivered", raw.Redelivered))

	err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	if err == nil {
		c.settle(raw, raw.Ack(false), "ack")
		return
	}

	// Вторая неудача подряд — в DLQ, иначе сообщение будет крутиться вечно.
	requeue := !raw.Redelivered
	log.Error("handler failed", zap.Bool("requeue", requeue), zap.Error(err))
	c.settle(raw, raw.Nack(false, requeue), "nack")
}

func (c *Consumer) settle(raw amqp.Delivery, err error, op string) {
	if err != nil {
		c.logger.Warn("failed to settle delivery",
			zap.String("op", op),
			zap.Uint64("delivery_tag", raw.DeliveryTag),
			zap.Error(err),
		)
	}
}

// ParsePayload декодирует payload сообщения в T.
//
// После json.Unmarshal в Message payload лежит как map[string]any,
// поэтому он перекодируется через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
