package lifecycle

import "errors"

// ErrProgramPanic — программа task запаниковала; считается ошибкой task.
var ErrProgramPanic = errors.New("program panicked")
