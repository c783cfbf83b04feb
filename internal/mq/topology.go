package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks         Exchange = "bourreau.tasks"
	ExchangeNotifications Exchange = "bourreau.notifications"
	ExchangeDLQ           Exchange = "bourreau.dlq"
)

// Queues — имена очередей.
const (
	QueueDLQTasks Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyDLQTasks RoutingKey = "tasks"
)

// SubmittedQueue — очередь событий о новых tasks для одного ресурса.
// Каждый воркер ресурса слушает свою очередь: tasks.submitted.<resource>.
func SubmittedQueue(resourceID uuid.UUID) Queue {
	return Queue("tasks.submitted." + resourceID.String())
}

// SubmittedRoutingKey — ключ, с которым публикуется task.submitted для ресурса.
func SubmittedRoutingKey(resourceID uuid.UUID) RoutingKey {
	return RoutingKey("submitted." + resourceID.String())
}

// NotificationRoutingKey — ключ уведомления: notification.<type>.
func NotificationRoutingKey(messageType string) RoutingKey {
	return RoutingKey("notification." + strings.ToLower(messageType))
}

// SetupTopology объявляет exchanges, очередь ресурса и bindings.
func SetupTopology(ctx context.Context, conn *Connection, resourceID uuid.UUID) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		if err := declareQueues(ch, resourceID); err != nil {
			return err
		}

		return bindQueues(ch, resourceID)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeNotifications, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel, resourceID uuid.UUID) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// tasks.submitted.<resource> — битые сообщения уходят в DLQ
		{SubmittedQueue(resourceID), dlqArgs},

		{QueueDLQTasks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel, resourceID uuid.UUID) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{SubmittedQueue(resourceID), SubmittedRoutingKey(resourceID), ExchangeTasks},
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(resourceID uuid.UUID) string {
	return fmt.Sprintf(`
  Bourreau RabbitMQ Topology:

    bourreau.tasks (direct)
    └── %s [routing: %s]
            Consumer: Worker (wake on submit)
            DLQ: dlq.tasks

    bourreau.notifications (topic)
    └── notification.notice | notification.error
            Consumer: portal

    bourreau.dlq (direct)
    └── dlq.tasks [routing: tasks]
            Manual processing
`, SubmittedQueue(resourceID), SubmittedRoutingKey(resourceID))
}
