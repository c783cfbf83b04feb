// Package notify доставляет уведомления владельцам tasks.
//
// Messenger сохраняет уведомление в таблицу messages и, если RabbitMQ
// подключён, публикует его в bourreau.notifications. Доставка работает
// по принципу fire-and-forget: ошибки логируются и считаются в метриках,
// но не возвращаются вызывающему.
package notify
