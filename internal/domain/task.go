package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task — единица вычислительной работы, закреплённая за одним Bourreau.
//
// Task создаётся вне воркера (портал, API) в статусе New.
// Дальше статус меняется только через переходы жизненного цикла.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// ResourceID — идентификатор Bourreau, которому принадлежит task.
	ResourceID uuid.UUID `json:"resource_id"`

	// UserID — владелец task, адресат уведомлений.
	UserID uuid.UUID `json:"user_id"`

	// Name — имя task (для логов и уведомлений).
	Name string `json:"name"`

	// Type — имя программы, которая выполняет task ("shell", "diagnostics").
	Type string `json:"type"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// Params — параметры программы.
	Params map[string]any `json:"params,omitempty"`

	// ClusterJobID — идентификатор job в кластере (после отправки).
	ClusterJobID string `json:"cluster_job_id,omitempty"`

	// WorkDir — рабочий каталог task.
	WorkDir string `json:"work_dir,omitempty"`

	// Log — журнал task, только дописывается.
	Log []LogEntry `json:"log,omitempty"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry — запись в журнале task.
type LogEntry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// LogHook строит запись журнала для task на успешном пути перехода.
type LogHook func(task *Task) LogEntry

// Label возвращает человекочитаемую метку "<name>-<id>" для логов.
func (t *Task) Label() string {
	return fmt.Sprintf("%s-%s", t.Name, t.ID)
}

// Reference возвращает ссылку на task для уведомлений.
func (t *Task) Reference() string {
	return fmt.Sprintf("/tasks/%s", t.ID)
}

// AddLog дописывает запись в журнал и возвращает её.
func (t *Task) AddLog(text string) LogEntry {
	entry := LogEntry{Time: time.Now().UTC(), Text: text}
	t.Log = append(t.Log, entry)
	return entry
}

// AddLogContext дописывает запись вида "<who>: <text>".
func (t *Task) AddLogContext(who, text string) LogEntry {
	entry := NewContextEntry(who, text)
	t.Log = append(t.Log, entry)
	return entry
}

// NewContextEntry создаёт запись журнала вида "<who>: <text>", не изменяя task.
func NewContextEntry(who, text string) LogEntry {
	return LogEntry{Time: time.Now().UTC(), Text: fmt.Sprintf("%s: %s", who, text)}
}

// IsFinished возвращает true, если task в финальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// Param возвращает строковый параметр программы или defaultVal.
func (t *Task) Param(key, defaultVal string) string {
	if val, ok := t.Params[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}
