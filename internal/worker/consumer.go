package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/mq"
)

// HandleTaskSubmitted — обработчик очереди tasks.submitted.<resource>.
//
// Сообщение лишь будит воркер: сама task будет найдена обычным опросом.
// Воркер будится даже по нечитаемому сообщению, но такое сообщение
// возвращается ошибкой и после повторной доставки уходит в DLQ.
func (w *Worker) HandleTaskSubmitted(_ context.Context, delivery *mq.Delivery) error {
	woke := w.Wake()

	msg := &delivery.Message
	if msg.Type != mq.MessageTypeTaskSubmitted {
		return fmt.Errorf("%w: unexpected type %q", ErrBadEvent, msg.Type)
	}
	payload, err := mq.ParsePayload[mq.TaskSubmittedPayload](msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadEvent, err)
	}
	if payload.TaskID == uuid.Nil {
		return fmt.Errorf("%w: missing task_id", ErrBadEvent)
	}

	w.logger.Debug("received task.submitted event",
		zap.String("task_id", payload.TaskID.String()),
		zap.Bool("woke", woke),
	)
	return nil
}
