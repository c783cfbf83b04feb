// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение и канал; переподключение с backoff, сигнал Reconnected
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - task.submitted       — на ресурсе появилась новая task (будит воркер)
//   - notification.created — уведомление владельцу task
//
// Exchanges:
//   - bourreau.tasks         — события tasks, очередь tasks.submitted.<resource> на каждый ресурс
//   - bourreau.notifications — уведомления, routing key notification.<type>
//   - bourreau.dlq           — dead letter queue
//
// RabbitMQ не обязателен: воркер без него работает только на polling.
package mq
