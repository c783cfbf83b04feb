package programs

import (
	"context"
	"fmt"

	"github.com/shaiso/Bourreau/internal/domain"
)

// DiagnosticsProgram — программа для task типа "diagnostics".
//
// Проверяет путь task через весь жизненный цикл: job просто ждёт
// указанное время. Параметры позволяют намеренно провалить подготовку
// или постобработку.
//
// Params:
//   - duration_sec (number): длительность job в секундах (default: 1)
//   - fail_setup (bool): провалить Setup
//   - fail_postprocess (bool): провалить SaveResults
type DiagnosticsProgram struct{}

// Setup проверяет параметры.
func (p *DiagnosticsProgram) Setup(_ context.Context, task *domain.Task) error {
	if boolParam(task, "fail_setup") {
		return fmt.Errorf("%w: fail_setup requested", ErrInjectedFailure)
	}
	return nil
}

// Commands возвращает команды ожидания.
func (p *DiagnosticsProgram) Commands(task *domain.Task) ([]string, error) {
	durationSec := 1.0
	if val, ok := task.Params["duration_sec"]; ok {
		switch v := val.(type) {
		case float64:
			durationSec = v
		case int:
			durationSec = float64(v)
		}
	}
	if durationSec < 0 {
		durationSec = 0
	}

	return []string{
		"echo diagnostics start",
		fmt.Sprintf("sleep %g", durationSec),
		"echo diagnostics done",
	}, nil
}

// SaveResults ничего не сохраняет.
func (p *DiagnosticsProgram) SaveResults(_ context.Context, task *domain.Task) error {
	if boolParam(task, "fail_postprocess") {
		return fmt.Errorf("%w: fail_postprocess requested", ErrInjectedFailure)
	}
	return nil
}

func boolParam(task *domain.Task, key string) bool {
	v, ok := task.Params[key].(bool)
	return ok && v
}
