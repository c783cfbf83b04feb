package programs

import (
	"context"
	"fmt"

	"github.com/shaiso/Bourreau/internal/domain"
)

// Program — интерфейс программы, выполняющей task определённого типа.
type Program interface {
	// Setup готовит task к отправке: проверяет параметры, заполняет WorkDir.
	Setup(ctx context.Context, task *domain.Task) error

	// Commands возвращает команды shell для job.
	Commands(task *domain.Task) ([]string, error)

	// SaveResults сохраняет результаты завершившегося job.
	SaveResults(ctx context.Context, task *domain.Task) error
}

// Registry — реестр программ по типу task.
type Registry struct {
	programs map[string]Program
}

// NewRegistry создаёт реестр с программами по умолчанию.
//
// Регистрирует: shell, diagnostics.
func NewRegistry() *Registry {
	r := &Registry{programs: make(map[string]Program)}
	r.Register("shell", &ShellProgram{})
	r.Register("diagnostics", &DiagnosticsProgram{})
	return r
}

// Register добавляет программу для типа task.
func (r *Registry) Register(taskType string, program Program) {
	r.programs[taskType] = program
}

// Get возвращает программу для типа task.
func (r *Registry) Get(taskType string) (Program, error) {
	program, ok := r.programs[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, taskType)
	}
	return program, nil
}
