package programs

import "errors"

// Ошибки программ.
var (
	// ErrUnknownProgram — нет программы для данного типа task.
	ErrUnknownProgram = errors.New("unknown program")

	// ErrInvalidParams — параметры task не подходят программе.
	ErrInvalidParams = errors.New("invalid task params")

	// ErrMissingOutput — ожидаемый результат job не найден.
	ErrMissingOutput = errors.New("missing job output")

	// ErrInjectedFailure — ошибка, запрошенная параметрами diagnostics.
	ErrInjectedFailure = errors.New("injected failure")
)
