package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shaiso/Bourreau/internal/cluster"
	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/programs"
	"github.com/shaiso/Bourreau/internal/telemetry"
)

// Store — операции хранилища, нужные жизненному циклу.
// Реализуется repo.TaskRepo.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus) (domain.Transition, error)
	SaveJob(ctx context.Context, task *domain.Task) error
	AppendLog(ctx context.Context, id uuid.UUID, entries ...domain.LogEntry) error
}

// Manager выполняет переходы жизненного цикла task.
//
// Ожидаемые ошибки task (плохие параметры, отказ кластера, провал
// постобработки) Manager поглощает сам и переводит task в статус
// "Failed…". Наружу уходят только:
//   - domain.Transition с OutcomeRejected — другой воркер успел раньше;
//   - error — сбой хранилища или другой дефект, со стеком.
type Manager struct {
	store    Store
	backend  cluster.Backend
	programs *programs.Registry
	workRoot string
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// Config — конфигурация Manager.
type Config struct {
	Store    Store
	Backend  cluster.Backend
	Programs *programs.Registry // опционально; если nil — programs.NewRegistry()
	WorkRoot string             // корень рабочих каталогов tasks
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	registry := cfg.Programs
	if registry == nil {
		registry = programs.NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	return &Manager{
		store:    cfg.Store,
		backend:  cfg.Backend,
		programs: registry,
		workRoot: cfg.WorkRoot,
		logger:   logger,
		metrics:  metrics,
	}
}

// SetupAndSubmitJob: New → Setting Up → Queued | Failed To Setup.
//
// hook вызывается только на пути к успеху, его запись попадает в журнал task.
func (m *Manager) SetupAndSubmitJob(ctx context.Context, task *domain.Task, hook domain.LogHook) (domain.Transition, error) {
	tr, err := m.move(ctx, task, domain.TaskStatusNew, domain.TaskStatusSettingUp)
	if err != nil || tr.IsRejected() {
		return tr, err
	}

	jobID, failure := m.setupAndSubmit(ctx, task)
	if failure != nil {
		return m.fail(ctx, task, domain.TaskStatusFailedToSetup, "Setup failed", failure)
	}

	task.ClusterJobID = jobID
	if err := m.store.SaveJob(ctx, task); err != nil {
		return domain.Transition{}, pkgerrors.Wrapf(err, "save job for task %s", task.ID)
	}
	if err := m.appendLog(ctx, task, task.AddLog(fmt.Sprintf("Submitted to cluster as job %s", jobID))); err != nil {
		return domain.Transition{}, err
	}

	return m.succeed(ctx, task, domain.TaskStatusQueued, hook)
}

// PostProcess: Data Ready → Post Processing → Completed | Failed To PostProcess.
func (m *Manager) PostProcess(ctx context.Context, task *domain.Task, hook domain.LogHook) (domain.Transition, error) {
	tr, err := m.move(ctx, task, domain.TaskStatusDataReady, domain.TaskStatusPostProcessing)
	if err != nil || tr.IsRejected() {
		return tr, err
	}

	failure := m.saveResults(ctx, task)
	if failure != nil {
		return m.fail(ctx, task, domain.TaskStatusFailedToPostProcess, "Post processing failed", failure)
	}

	return m.succeed(ctx, task, domain.TaskStatusCompleted, hook)
}

// UpdateStatus отражает состояние job в кластере на статус task.
//
// Затрагивает только Queued и On CPU; для остальных статусов и для job,
// чьё состояние не изменилось, возвращает Applied(s, s). Проигранная гонка
// не ошибка: task перечитывается и возвращается вместе с Rejected, чтобы
// вызывающий не принял чужой переход за свой.
func (m *Manager) UpdateStatus(ctx context.Context, task *domain.Task) (*domain.Task, domain.Transition, error) {
	unchanged := domain.Applied(task.Status, task.Status)
	if task.Status != domain.TaskStatusQueued && task.Status != domain.TaskStatusOnCPU {
		return task, unchanged, nil
	}

	var lost bool
	state, err := m.backend.State(ctx, task.ClusterJobID)
	if err != nil {
		m.metrics.ClusterCalls.WithLabelValues("state", "error").Inc()
		if !errors.Is(err, cluster.ErrJobNotFound) {
			// Кластер недоступен — статус не меняем, попробуем на следующем цикле.
			m.logger.Warn("cluster state unavailable",
				zap.String("task", task.Label()),
				zap.String("job_id", task.ClusterJobID),
				zap.Error(err),
			)
			return task, unchanged, nil
		}
		state, lost = cluster.JobFailed, true
	} else {
		m.metrics.ClusterCalls.WithLabelValues("state", "ok").Inc()
	}

	next := nextStatus(task.Status, state)
	if next == task.Status {
		return task, unchanged, nil
	}

	tr, err := m.store.Transition(ctx, task.ID, task.Status, next)
	if err != nil {
		return nil, domain.Transition{}, pkgerrors.Wrapf(err, "update status of task %s", task.ID)
	}
	if tr.IsRejected() {
		m.logger.Debug("status update lost race, reloading",
			zap.String("task", task.Label()),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
		)
		fresh, err := m.store.GetByID(ctx, task.ID)
		if err != nil {
			return nil, domain.Transition{}, pkgerrors.Wrapf(err, "reload task %s", task.ID)
		}
		return fresh, tr, nil
	}

	task.Status = next
	if lost {
		if err := m.appendLog(ctx, task, task.AddLog("Cluster lost track of job "+task.ClusterJobID)); err != nil {
			return nil, domain.Transition{}, err
		}
	}
	return task, tr, nil
}

// nextStatus сопоставляет состояние job со статусом task.
func nextStatus(current domain.TaskStatus, state cluster.JobState) domain.TaskStatus {
	switch state {
	case cluster.JobRunning:
		if current == domain.TaskStatusQueued {
			return domain.TaskStatusOnCPU
		}
	case cluster.JobDone:
		return domain.TaskStatusDataReady
	case cluster.JobFailed:
		return domain.TaskStatusFailedOnCluster
	}
	return current
}

// setupAndSubmit выполняет часть перехода, которая может провалиться по вине task.
// Паника программы тоже считается ошибкой task.
func (m *Manager) setupAndSubmit(ctx context.Context, task *domain.Task) (jobID string, failure error) {
	defer recoverFailure(&failure)

	program, err := m.programs.Get(task.Type)
	if err != nil {
		return "", err
	}

	if task.WorkDir == "" {
		task.WorkDir = filepath.Join(m.workRoot, task.ID.String())
	}
	if err := program.Setup(ctx, task); err != nil {
		return "", fmt.Errorf("setup: %w", err)
	}

	commands, err := program.Commands(task)
	if err != nil {
		return "", fmt.Errorf("commands: %w", err)
	}

	jobID, err = m.backend.Submit(ctx, cluster.JobSpec{
		TaskID:   task.ID,
		WorkDir:  task.WorkDir,
		Commands: commands,
	})
	if err != nil {
		m.metrics.ClusterCalls.WithLabelValues("submit", "error").Inc()
		return "", fmt.Errorf("submit: %w", err)
	}
	m.metrics.ClusterCalls.WithLabelValues("submit", "ok").Inc()
	return jobID, nil
}

// saveResults выполняет постобработку программы.
func (m *Manager) saveResults(ctx context.Context, task *domain.Task) (failure error) {
	defer recoverFailure(&failure)

	program, err := m.programs.Get(task.Type)
	if err != nil {
		return err
	}
	return program.SaveResults(ctx, task)
}

// move выполняет guarded переход и обновляет task в памяти.
func (m *Manager) move(ctx context.Context, task *domain.Task, from, to domain.TaskStatus) (domain.Transition, error) {
	tr, err := m.store.Transition(ctx, task.ID, from, to)
	if err != nil {
		return domain.Transition{}, pkgerrors.WithStack(err)
	}
	if !tr.IsRejected() {
		task.Status = to
	}
	return tr, nil
}

// succeed завершает переход в статус to и добавляет запись hook.
func (m *Manager) succeed(ctx context.Context, task *domain.Task, to domain.TaskStatus, hook domain.LogHook) (domain.Transition, error) {
	from := task.Status
	tr, err := m.move(ctx, task, from, to)
	if err != nil || tr.IsRejected() {
		return tr, err
	}

	if hook != nil {
		entry := hook(task)
		task.Log = append(task.Log, entry)
		if err := m.appendLog(ctx, task, entry); err != nil {
			return domain.Transition{}, err
		}
	}
	return tr, nil
}

// fail записывает причину в журнал и переводит task в статус ошибки.
func (m *Manager) fail(ctx context.Context, task *domain.Task, to domain.TaskStatus, what string, failure error) (domain.Transition, error) {
	m.logger.Info("task failed",
		zap.String("task", task.Label()),
		zap.String("status", string(to)),
		zap.Error(failure),
	)

	if err := m.appendLog(ctx, task, task.AddLog(fmt.Sprintf("%s: %v", what, failure))); err != nil {
		return domain.Transition{}, err
	}
	return m.move(ctx, task, task.Status, to)
}

func (m *Manager) appendLog(ctx context.Context, task *domain.Task, entries ...domain.LogEntry) error {
	if err := m.store.AppendLog(ctx, task.ID, entries...); err != nil {
		return pkgerrors.Wrapf(err, "append log for task %s", task.ID)
	}
	return nil
}

// recoverFailure превращает панику программы в ошибку task.
func recoverFailure(failure *error) {
	if r := recover(); r != nil {
		*failure = fmt.Errorf("%w: %v", ErrProgramPanic, r)
	}
}
