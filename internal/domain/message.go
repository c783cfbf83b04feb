package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType — тип уведомления пользователю.
type MessageType string

const (
	// MessageTypeNotice — информационное уведомление.
	MessageTypeNotice MessageType = "notice"

	// MessageTypeError — уведомление об ошибке.
	MessageTypeError MessageType = "error"
)

// Message — уведомление владельцу task.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	Type        MessageType `json:"type"`
	Header      string      `json:"header"`
	Description string      `json:"description,omitempty"`
	Reference   string      `json:"reference,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// CompletedMessage строит уведомление об успешном завершении task.
func CompletedMessage(task *Task) Message {
	return Message{
		ID:          uuid.New(),
		UserID:      task.UserID,
		Type:        MessageTypeNotice,
		Header:      "Task " + task.Name + " Completed Successfully",
		Description: "Oh great!",
		Reference:   task.Reference(),
		CreatedAt:   time.Now().UTC(),
	}
}

// FailedMessage строит уведомление о неудаче task.
func FailedMessage(task *Task) Message {
	return Message{
		ID:          uuid.New(),
		UserID:      task.UserID,
		Type:        MessageTypeError,
		Header:      "Task " + task.Name + " Failed",
		Description: "Sorry about that. Check the task's log.",
		Reference:   task.Reference(),
		CreatedAt:   time.Now().UTC(),
	}
}
