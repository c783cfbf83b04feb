package programs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Bourreau/internal/domain"
)

// ShellProgram — программа для task типа "shell".
//
// Выполняет произвольную команду в рабочем каталоге task.
//
// Params:
//   - command (string): команда shell (обязательно)
//   - output (string): файл в рабочем каталоге, который должен появиться
//     после выполнения (опционально)
type ShellProgram struct{}

// Setup проверяет наличие команды.
func (p *ShellProgram) Setup(_ context.Context, task *domain.Task) error {
	if strings.TrimSpace(task.Param("command", "")) == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidParams)
	}
	return nil
}

// Commands возвращает команду из params.
func (p *ShellProgram) Commands(task *domain.Task) ([]string, error) {
	command := strings.TrimSpace(task.Param("command", ""))
	if command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidParams)
	}
	return []string{command}, nil
}

// SaveResults проверяет, что ожидаемый output создан.
func (p *ShellProgram) SaveResults(_ context.Context, task *domain.Task) error {
	output := task.Param("output", "")
	if output == "" {
		return nil
	}

	path := filepath.Join(task.WorkDir, filepath.Clean("/"+output))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingOutput, output)
	}
	return nil
}
