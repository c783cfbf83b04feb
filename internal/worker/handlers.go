package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/repo"
	"github.com/shaiso/Bourreau/internal/telemetry"
)

// workerContext — автор записей воркера в журнале task.
const workerContext = "BourreauWorker"

// maxStackFrames — сколько кадров стека попадает в FATAL-запись.
const maxStackFrames = 10

// handler выполняет переход task из одного статуса.
type handler func(ctx context.Context, task *domain.Task) (domain.Transition, error)

// handlerTable сопоставляет каждому статусу его обработчик.
//
// Переходы из New и Data Ready выполняет воркер. Queued и On CPU
// двигает кластер, их синхронизирует UpdateStatus. Финальные и
// промежуточные статусы обработки не требуют.
func (w *Worker) handlerTable() map[domain.TaskStatus]handler {
	return map[domain.TaskStatus]handler{
		domain.TaskStatusNew:                 w.setupAndSubmit,
		domain.TaskStatusSettingUp:           noAction,
		domain.TaskStatusQueued:              noAction,
		domain.TaskStatusOnCPU:               noAction,
		domain.TaskStatusDataReady:           w.postProcess,
		domain.TaskStatusPostProcessing:      noAction,
		domain.TaskStatusCompleted:           noAction,
		domain.TaskStatusFailedToSetup:       noAction,
		domain.TaskStatusFailedOnCluster:     noAction,
		domain.TaskStatusFailedToPostProcess: noAction,
	}
}

// handlerFor возвращает обработчик статуса; неизвестный статус — noAction.
func (w *Worker) handlerFor(status domain.TaskStatus) handler {
	if h, ok := w.handlers[status]; ok {
		return h
	}
	w.logger.Warn("no handler for status", zap.String("status", string(status)))
	return noAction
}

func noAction(_ context.Context, task *domain.Task) (domain.Transition, error) {
	return domain.Applied(task.Status, task.Status), nil
}

// setupAndSubmit: New → Queued | Failed To Setup.
func (w *Worker) setupAndSubmit(ctx context.Context, task *domain.Task) (domain.Transition, error) {
	w.logger.Debug("start", zap.String("task", task.Label()))
	return w.lifecycle.SetupAndSubmitJob(ctx, task, w.logHook)
}

// postProcess: Data Ready → Completed | Failed To PostProcess.
func (w *Worker) postProcess(ctx context.Context, task *domain.Task) (domain.Transition, error) {
	entry := task.AddLogContext(workerContext, fmt.Sprintf("Post Processing, PID=%d", w.pid))
	if err := w.store.AppendLog(ctx, task.ID, entry); err != nil {
		return domain.Transition{}, pkgerrors.Wrapf(err, "append log for task %s", task.ID)
	}

	w.logger.Debug("post processing", zap.String("task", task.Label()))
	return w.lifecycle.PostProcess(ctx, task, w.logHook)
}

// logHook подписывает успешный переход именем воркера.
func (w *Worker) logHook(_ *domain.Task) domain.LogEntry {
	return domain.NewContextEntry(workerContext, w.name)
}

// ProcessTask продвигает одну task на один шаг.
//
//  1. Перечитывает task из хранилища.
//  2. Синхронизирует статус с кластером (UpdateStatus).
//  3. Выполняет обработчик статуса.
//  4. Уведомляет владельца, если task пришла в Completed или Failed….
//
// Проигранная гонка (переход отклонён guard'ом) логируется на debug и
// не считается ошибкой. Любая другая ошибка или паника — дефект: пишется
// запись FATAL со стеком, ошибка возвращается вызывающему. Статус task
// при этом остаётся таким, каким его оставил сорвавшийся переход.
func (w *Worker) ProcessTask(ctx context.Context, task *domain.Task) (err error) {
	label := task.Label()

	defer func() {
		if r := recover(); r != nil {
			err = w.defect(ctx, label, pkgerrors.WithStack(&PanicError{Value: r}))
		}
	}()

	fresh, err := w.store.GetByID(ctx, task.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			w.logger.Debug("task vanished before processing", zap.String("task", label))
			return nil
		}
		return w.defect(ctx, label, pkgerrors.Wrapf(err, "reload task %s", task.ID))
	}
	initial := fresh.Status
	w.logger.Debug("got task", zap.String("task", label), zap.String("status", string(initial)))

	fresh, refresh, err := w.lifecycle.UpdateStatus(ctx, fresh)
	if err != nil {
		return w.defect(ctx, label, err)
	}
	if refresh.IsRejected() {
		w.raceLost(label, refresh)
		return nil
	}
	if fresh.Status != initial {
		w.logger.Debug("updated task status",
			zap.String("task", label),
			zap.String("from", string(initial)),
			zap.String("to", string(fresh.Status)),
		)
	}

	tr, err := w.handlerFor(fresh.Status)(ctx, fresh)
	if err != nil {
		return w.defect(ctx, label, err)
	}
	if tr.IsRejected() {
		w.raceLost(label, tr)
		return nil
	}

	w.metrics.TasksProcessed.WithLabelValues(string(fresh.Status)).Inc()
	w.logger.Debug("task handled", zap.String("task", label), zap.String("status", string(fresh.Status)))

	// Уведомляет только воркер, чей переход изменил статус.
	if fresh.Status == initial {
		return nil
	}
	w.notify(ctx, fresh)
	return nil
}

// raceLost учитывает переход, отклонённый guard'ом хранилища.
func (w *Worker) raceLost(label string, tr domain.Transition) {
	w.metrics.Races.Inc()
	w.logger.Debug("transition race lost",
		zap.String("task", label),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
	)
}

// notify отправляет владельцу уведомление о финальном статусе.
func (w *Worker) notify(ctx context.Context, task *domain.Task) {
	if w.notifier == nil {
		return
	}

	switch {
	case task.Status == domain.TaskStatusCompleted:
		w.notifier.Send(ctx, domain.CompletedMessage(task))
	case task.Status.IsFailed():
		w.notifier.Send(ctx, domain.FailedMessage(task))
	}
}

// defect пишет FATAL-запись о дефекте и возвращает ошибку для вызывающего.
// Отмена ctx дефектом не считается.
func (w *Worker) defect(ctx context.Context, label string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("process task %s: %w", label, ctx.Err())
	}

	w.metrics.Defects.Inc()
	telemetry.Fatal(w.logger, "exception processing task",
		zap.String("task", label),
		zap.String("category", errorCategory(err)),
		zap.String("error", err.Error()),
		zap.Strings("stack", stackExcerpt(err, maxStackFrames)),
	)
	return fmt.Errorf("%w: task %s: %w", ErrDefect, label, err)
}

// errorCategory возвращает тип исходной ошибки без обёрток со стеком.
func errorCategory(err error) string {
	return fmt.Sprintf("%T", pkgerrors.Cause(err))
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stackExcerpt возвращает до n кадров самого глубокого стека в цепочке err.
// Кадры рантайма (panic, recover) пропускаются.
func stackExcerpt(err error, n int) []string {
	var trace pkgerrors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			trace = st.StackTrace()
		}
	}
	if trace == nil {
		// Стека нет — берём место обнаружения.
		trace = pkgerrors.New("").(stackTracer).StackTrace()
	}

	frames := make([]string, 0, n)
	for _, f := range trace {
		frame := strings.Replace(fmt.Sprintf("%+v", f), "\n\t", " ", 1)
		if strings.HasPrefix(frame, "runtime.") {
			continue
		}
		frames = append(frames, frame)
		if len(frames) == n {
			break
		}
	}
	return frames
}
