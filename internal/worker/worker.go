package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultSleepCeiling = time.Hour
)

// TaskStore — операции хранилища, нужные циклу воркера.
// Реализуется repo.TaskRepo.
type TaskStore interface {
	FindActionable(ctx context.Context, resourceID uuid.UUID, statuses []domain.TaskStatus) ([]domain.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	AppendLog(ctx context.Context, id uuid.UUID, entries ...domain.LogEntry) error
}

// Lifecycle — переходы жизненного цикла task.
// Реализуется lifecycle.Manager.
type Lifecycle interface {
	UpdateStatus(ctx context.Context, task *domain.Task) (*domain.Task, domain.Transition, error)
	SetupAndSubmitJob(ctx context.Context, task *domain.Task, hook domain.LogHook) (domain.Transition, error)
	PostProcess(ctx context.Context, task *domain.Task, hook domain.LogHook) (domain.Transition, error)
}

// Notifier доставляет уведомления владельцам tasks (fire-and-forget).
// Реализуется notify.Messenger.
type Notifier interface {
	Send(ctx context.Context, msg domain.Message)
}

// Worker продвигает tasks своего ресурса по жизненному циклу.
//
// Один Worker — одна горутина цикла; tasks внутри цикла обрабатываются
// последовательно. Несколько процессов воркеров могут работать с одним
// хранилищем: гонки разрешает guard перехода в хранилище.
type Worker struct {
	store     TaskStore
	lifecycle Lifecycle
	notifier  Notifier

	resourceID   uuid.UUID
	name         string
	pid          int
	pollInterval time.Duration
	sleepCeiling time.Duration

	state    *RunState
	handlers map[domain.TaskStatus]handler

	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// Config — конфигурация Worker.
type Config struct {
	Store     TaskStore
	Lifecycle Lifecycle
	Notifier  Notifier

	// ResourceID — ресурс, tasks которого обрабатывает воркер.
	ResourceID uuid.UUID

	// Name — имя воркера для журналов tasks (default: "BourreauWorker <pid>").
	Name string

	PollInterval time.Duration // пауза между циклами с работой (default: 10s)
	SleepCeiling time.Duration // потолок idle-sleep (default: 1h)

	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	sleepCeiling := cfg.SleepCeiling
	if sleepCeiling <= 0 {
		sleepCeiling = defaultSleepCeiling
	}

	pid := os.Getpid()
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%s %d", workerContext, pid)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	w := &Worker{
		store:        cfg.Store,
		lifecycle:    cfg.Lifecycle,
		notifier:     cfg.Notifier,
		resourceID:   cfg.ResourceID,
		name:         name,
		pid:          pid,
		pollInterval: pollInterval,
		sleepCeiling: sleepCeiling,
		state:        NewRunState(sleepCeiling),
		logger: telemetry.WithResourceID(logger, cfg.ResourceID.String()).
			With(zap.String("worker", name)),
		metrics: metrics,
	}
	w.handlers = w.handlerTable()
	return w
}

// Run — внешний цикл воркера.
//
// Чередует RunCycle и ожидание: после цикла с работой воркер ждёт
// PollInterval, после пустого цикла спит до потолка. Любое ожидание
// прерывается Wake, Stop или отменой ctx.
//
// Возвращает nil после Stop, ctx.Err() после отмены ctx и ошибку
// RunCycle, если при обработке случился дефект.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting worker",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("sleep_ceiling", w.sleepCeiling),
	)

	for {
		if w.state.StopRequested() {
			w.logger.Info("worker stopped")
			return nil
		}

		if !w.state.Sleeping() {
			if err := w.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if w.state.StopRequested() {
				continue
			}
			if !w.state.Sleeping() {
				w.state.RequestSleep(w.pollInterval)
			}
		}

		if err := w.idle(ctx); err != nil {
			return err
		}
	}
}

// idle ждёт конца idle-sleep. Gauge Sleeping поднимается только на время
// настоящего сна: в режиме scan и после Stop ожидания нет.
func (w *Worker) idle(ctx context.Context) error {
	if mode, _, stop := w.state.Snapshot(); mode != ModeSleep || stop {
		return nil
	}

	w.metrics.Sleeping.Set(1)
	defer w.metrics.Sleeping.Set(0)
	return w.state.Wait(ctx)
}

// RunCycle выполняет один цикл опроса.
//
// Находит tasks ресурса в actionable-статусах. Если их нет — уходит
// в idle-sleep до потолка. Иначе обрабатывает tasks по порядку хранилища,
// проверяя флаг остановки после каждой. Дефект при обработке task
// прерывает цикл и возвращается.
func (w *Worker) RunCycle(ctx context.Context) error {
	w.metrics.Cycles.Inc()

	w.logger.Debug("finding list of active tasks")
	tasks, err := w.store.FindActionable(ctx, w.resourceID, domain.ActionableStatuses())
	if err != nil {
		return fmt.Errorf("find actionable tasks: %w", err)
	}

	if len(tasks) == 0 {
		deadline := w.state.RequestSleep(w.sleepCeiling)
		w.logger.Info("no tasks need handling, going to sleep", zap.Time("until", deadline))
		if w.state.StopRequested() {
			w.logger.Info("stop requested")
		}
		return nil
	}

	w.logger.Info("found tasks to handle", zap.Int("count", len(tasks)))

	for i := range tasks {
		if err := w.ProcessTask(ctx, &tasks[i]); err != nil {
			return err
		}
		if w.state.StopRequested() {
			w.logger.Info("stop requested, leaving batch",
				zap.Int("processed", i+1),
				zap.Int("skipped", len(tasks)-i-1),
			)
			return nil
		}
	}

	return nil
}

// Wake прерывает idle-sleep; следующий цикл заново опросит хранилище.
// Возвращает true, если воркер спал.
func (w *Worker) Wake() bool {
	woke := w.state.Wake()
	if woke {
		w.logger.Info("woken up")
	}
	return woke
}

// Stop просит воркер остановиться.
// Текущий переход task доводится до конца, оставшиеся tasks цикла пропускаются.
func (w *Worker) Stop() {
	w.logger.Info("stop requested")
	w.state.RequestStop()
}

// Status — снимок состояния воркера.
type Status struct {
	ResourceID    uuid.UUID  `json:"resource_id"`
	Name          string     `json:"name"`
	PID           int        `json:"pid"`
	Mode          Mode       `json:"mode"`
	SleepUntil    *time.Time `json:"sleep_until,omitempty"`
	StopRequested bool       `json:"stop_requested"`
}

// Status возвращает снимок состояния воркера.
func (w *Worker) Status() Status {
	mode, deadline, stop := w.state.Snapshot()

	st := Status{
		ResourceID:    w.resourceID,
		Name:          w.name,
		PID:           w.pid,
		Mode:          mode,
		StopRequested: stop,
	}
	if !deadline.IsZero() {
		st.SleepUntil = &deadline
	}
	return st
}
