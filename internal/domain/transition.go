package domain

import "fmt"

// Outcome — результат попытки перехода статуса.
type Outcome int

const (
	// OutcomeApplied — переход выполнен (включая переход в статус ошибки).
	OutcomeApplied Outcome = iota

	// OutcomeRejected — guard хранилища отклонил переход: статус task
	// уже не тот, что видел воркер (другой воркер успел раньше).
	OutcomeRejected
)

// String возвращает строковое представление Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Transition описывает попытку перехода From → To и её исход.
type Transition struct {
	Outcome Outcome
	From    TaskStatus
	To      TaskStatus
}

// Applied создаёт успешный Transition.
func Applied(from, to TaskStatus) Transition {
	return Transition{Outcome: OutcomeApplied, From: from, To: to}
}

// Rejected создаёт отклонённый Transition.
func Rejected(from, to TaskStatus) Transition {
	return Transition{Outcome: OutcomeRejected, From: from, To: to}
}

// IsRejected возвращает true, если переход проиграл гонку.
func (t Transition) IsRejected() bool {
	return t.Outcome == OutcomeRejected
}

// Err возвращает *TransitionError для отклонённого перехода, иначе nil.
func (t Transition) Err() error {
	if !t.IsRejected() {
		return nil
	}
	return &TransitionError{From: t.From, To: t.To}
}

// TransitionError — отклонённый переход в виде ошибки,
// для вызывающих, которым удобнее errors.As.
type TransitionError struct {
	From TaskStatus
	To   TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition rejected: %q -> %q", e.From, e.To)
}
