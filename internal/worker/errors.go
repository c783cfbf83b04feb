package worker

import (
	"errors"
	"fmt"
)

// ErrDefect — при обработке task случилась ошибка, которой не должно быть:
// сбой хранилища или баг в переходе. Воркер после неё останавливается.
var ErrDefect = errors.New("defect processing task")

// ErrBadEvent — сообщение очереди не похоже на task.submitted.
var ErrBadEvent = errors.New("bad task.submitted event")

// PanicError — паника, перехваченная при обработке task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
