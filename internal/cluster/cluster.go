package cluster

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// JobState — состояние job с точки зрения кластера.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Ошибки backend'ов.
var (
	// ErrJobNotFound — кластер не знает такой job.
	ErrJobNotFound = errors.New("cluster job not found")

	// ErrSubmitFailed — кластер отказался принять job.
	ErrSubmitFailed = errors.New("cluster submit failed")

	// ErrBackendRequest — запрос к кластеру не удался.
	ErrBackendRequest = errors.New("cluster request failed")
)

// JobSpec — описание job для отправки в кластер.
type JobSpec struct {
	// TaskID — task, которому принадлежит job.
	TaskID uuid.UUID `json:"task_id"`

	// WorkDir — рабочий каталог job.
	WorkDir string `json:"work_dir"`

	// Commands — команды shell, выполняются последовательно.
	Commands []string `json:"commands"`
}

// Backend — планировщик ресурса, на котором выполняются jobs.
//
// Реализации: LocalBackend (процессы на этой машине), HTTPBackend
// (REST-шлюз к планировщику кластера).
type Backend interface {
	// Submit отправляет job и возвращает его идентификатор.
	Submit(ctx context.Context, spec JobSpec) (string, error)

	// State возвращает текущее состояние job.
	State(ctx context.Context, jobID string) (JobState, error)
}
