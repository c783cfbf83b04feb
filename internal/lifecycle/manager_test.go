package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Bourreau/internal/cluster"
	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/programs"
)

// --- fakes ---

// memStore — хранилище в памяти с тем же guard, что и repo.TaskRepo.
type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	// beforeTransition позволяет "другому воркеру" вмешаться в гонку.
	beforeTransition func(id uuid.UUID, from, to domain.TaskStatus)
	transitionErr    error
}

func newMemStore(tasks ...*domain.Task) *memStore {
	s := &memStore{tasks: make(map[uuid.UUID]*domain.Task)}
	for _, t := range tasks {
		cp := *t
		s.tasks[t.ID] = &cp
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) Transition(_ context.Context, id uuid.UUID, from, to domain.TaskStatus) (domain.Transition, error) {
	if s.beforeTransition != nil {
		s.beforeTransition(id, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return domain.Transition{}, s.transitionErr
	}
	t := s.tasks[id]
	if t == nil || t.Status != from {
		return domain.Rejected(from, to), nil
	}
	t.Status = to
	return domain.Applied(from, to), nil
}

func (s *memStore) SaveJob(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID].ClusterJobID = task.ClusterJobID
	s.tasks[task.ID].WorkDir = task.WorkDir
	return nil
}

func (s *memStore) AppendLog(_ context.Context, id uuid.UUID, entries ...domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Log = append(s.tasks[id].Log, entries...)
	return nil
}

func (s *memStore) status(id uuid.UUID) domain.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id].Status
}

func (s *memStore) log(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.tasks[id].Log {
		out = append(out, e.Text)
	}
	return out
}

type fakeBackend struct {
	submitted []cluster.JobSpec
	submitErr error
	state     cluster.JobState
	stateErr  error
}

func (b *fakeBackend) Submit(_ context.Context, spec cluster.JobSpec) (string, error) {
	if b.submitErr != nil {
		return "", b.submitErr
	}
	b.submitted = append(b.submitted, spec)
	return "job-1", nil
}

func (b *fakeBackend) State(_ context.Context, _ string) (cluster.JobState, error) {
	return b.state, b.stateErr
}

type panicProgram struct{ programs.DiagnosticsProgram }

func (p *panicProgram) Setup(context.Context, *domain.Task) error { panic("boom") }

func newTask(status domain.TaskStatus, taskType string, params map[string]any) *domain.Task {
	return &domain.Task{
		ID:     uuid.New(),
		Name:   "civet",
		Type:   taskType,
		Status: status,
		Params: params,
	}
}

func hook(task *domain.Task) domain.LogEntry {
	return domain.NewContextEntry("test-worker", "hooked")
}

// --- SetupAndSubmitJob Tests ---

func TestSetupAndSubmitJob_Success(t *testing.T) {
	task := newTask(domain.TaskStatusNew, "shell", map[string]any{"command": "echo hi"})
	store := newMemStore(task)
	backend := &fakeBackend{}
	m := New(Config{Store: store, Backend: backend, WorkRoot: "/scratch"})

	tr, err := m.SetupAndSubmitJob(context.Background(), task, hook)
	require.NoError(t, err)

	assert.Equal(t, domain.Applied(domain.TaskStatusSettingUp, domain.TaskStatusQueued), tr)
	assert.Equal(t, domain.TaskStatusQueued, task.Status)
	assert.Equal(t, domain.TaskStatusQueued, store.status(task.ID))
	assert.Equal(t, "job-1", task.ClusterJobID)

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, []string{"echo hi"}, backend.submitted[0].Commands)
	assert.Equal(t, "/scratch/"+task.ID.String(), backend.submitted[0].WorkDir)

	logs := store.log(task.ID)
	assert.Contains(t, logs, "test-worker: hooked")
	assert.Contains(t, logs, "Submitted to cluster as job job-1")
}

func TestSetupAndSubmitJob_TaskLocalFailures(t *testing.T) {
	tests := []struct {
		name     string
		task     *domain.Task
		backend  *fakeBackend
		registry *programs.Registry
	}{
		{
			name:    "invalid params",
			task:    newTask(domain.TaskStatusNew, "shell", nil),
			backend: &fakeBackend{},
		},
		{
			name:    "unknown program",
			task:    newTask(domain.TaskStatusNew, "matlab", nil),
			backend: &fakeBackend{},
		},
		{
			name:    "cluster refuses job",
			task:    newTask(domain.TaskStatusNew, "diagnostics", nil),
			backend: &fakeBackend{submitErr: cluster.ErrSubmitFailed},
		},
		{
			name:    "program panics",
			task:    newTask(domain.TaskStatusNew, "panicky", nil),
			backend: &fakeBackend{},
			registry: func() *programs.Registry {
				r := programs.NewRegistry()
				r.Register("panicky", &panicProgram{})
				return r
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(tt.task)
			m := New(Config{Store: store, Backend: tt.backend, Programs: tt.registry})

			hookCalled := false
			tr, err := m.SetupAndSubmitJob(context.Background(), tt.task, func(task *domain.Task) domain.LogEntry {
				hookCalled = true
				return hook(task)
			})

			require.NoError(t, err, "task-local failures are absorbed")
			assert.Equal(t, domain.OutcomeApplied, tr.Outcome)
			assert.Equal(t, domain.TaskStatusFailedToSetup, tr.To)
			assert.Equal(t, domain.TaskStatusFailedToSetup, store.status(tt.task.ID))
			assert.False(t, hookCalled, "hook runs only on the success path")

			logs := store.log(tt.task.ID)
			require.NotEmpty(t, logs)
			assert.True(t, strings.HasPrefix(logs[len(logs)-1], "Setup failed: "))
		})
	}
}

func TestSetupAndSubmitJob_LostRace(t *testing.T) {
	task := newTask(domain.TaskStatusNew, "shell", map[string]any{"command": "true"})
	store := newMemStore(task)
	// Другой воркер уже забрал task.
	store.tasks[task.ID].Status = domain.TaskStatusSettingUp
	backend := &fakeBackend{}
	m := New(Config{Store: store, Backend: backend})

	tr, err := m.SetupAndSubmitJob(context.Background(), task, hook)
	require.NoError(t, err)

	assert.True(t, tr.IsRejected())
	assert.Equal(t, domain.TaskStatusNew, tr.From)
	assert.Equal(t, domain.TaskStatusSettingUp, tr.To)
	assert.Empty(t, backend.submitted, "nothing is submitted after a lost race")
	assert.Equal(t, domain.TaskStatusSettingUp, store.status(task.ID))
}

func TestSetupAndSubmitJob_StoreErrorIsDefect(t *testing.T) {
	task := newTask(domain.TaskStatusNew, "shell", map[string]any{"command": "true"})
	store := newMemStore(task)
	store.transitionErr = errors.New("connection reset")
	m := New(Config{Store: store, Backend: &fakeBackend{}})

	_, err := m.SetupAndSubmitJob(context.Background(), task, hook)
	require.Error(t, err)

	type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
	var st stackTracer
	assert.True(t, errors.As(err, &st), "defects carry a stack")
}

// --- PostProcess Tests ---

func TestPostProcess_Success(t *testing.T) {
	task := newTask(domain.TaskStatusDataReady, "diagnostics", map[string]any{})
	store := newMemStore(task)
	m := New(Config{Store: store, Backend: &fakeBackend{}})

	tr, err := m.PostProcess(context.Background(), task, hook)
	require.NoError(t, err)

	assert.Equal(t, domain.Applied(domain.TaskStatusPostProcessing, domain.TaskStatusCompleted), tr)
	assert.Equal(t, domain.TaskStatusCompleted, store.status(task.ID))
	assert.Contains(t, store.log(task.ID), "test-worker: hooked")
}

func TestPostProcess_Failure(t *testing.T) {
	task := newTask(domain.TaskStatusDataReady, "diagnostics", map[string]any{"fail_postprocess": true})
	store := newMemStore(task)
	m := New(Config{Store: store, Backend: &fakeBackend{}})

	tr, err := m.PostProcess(context.Background(), task, hook)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusFailedToPostProcess, tr.To)
	assert.Equal(t, domain.TaskStatusFailedToPostProcess, task.Status)
	assert.Equal(t, domain.TaskStatusFailedToPostProcess, store.status(task.ID))
}

func TestPostProcess_LostRaceMidway(t *testing.T) {
	task := newTask(domain.TaskStatusDataReady, "diagnostics", map[string]any{})
	store := newMemStore(task)
	store.beforeTransition = func(id uuid.UUID, from, to domain.TaskStatus) {
		if to == domain.TaskStatusCompleted {
			store.mu.Lock()
			store.tasks[id].Status = domain.TaskStatusFailedToPostProcess
			store.mu.Unlock()
		}
	}
	m := New(Config{Store: store, Backend: &fakeBackend{}})

	tr, err := m.PostProcess(context.Background(), task, hook)
	require.NoError(t, err)
	assert.True(t, tr.IsRejected())
	assert.Equal(t, domain.TaskStatusFailedToPostProcess, store.status(task.ID))
}

// --- UpdateStatus Tests ---

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.TaskStatus
		backend *fakeBackend
		want    domain.TaskStatus
	}{
		{"queued stays queued", domain.TaskStatusQueued, &fakeBackend{state: cluster.JobQueued}, domain.TaskStatusQueued},
		{"queued starts running", domain.TaskStatusQueued, &fakeBackend{state: cluster.JobRunning}, domain.TaskStatusOnCPU},
		{"queued finished fast", domain.TaskStatusQueued, &fakeBackend{state: cluster.JobDone}, domain.TaskStatusDataReady},
		{"on cpu finished", domain.TaskStatusOnCPU, &fakeBackend{state: cluster.JobDone}, domain.TaskStatusDataReady},
		{"on cpu failed", domain.TaskStatusOnCPU, &fakeBackend{state: cluster.JobFailed}, domain.TaskStatusFailedOnCluster},
		{"job lost", domain.TaskStatusOnCPU, &fakeBackend{stateErr: cluster.ErrJobNotFound}, domain.TaskStatusFailedOnCluster},
		{"cluster unreachable", domain.TaskStatusOnCPU, &fakeBackend{stateErr: cluster.ErrBackendRequest}, domain.TaskStatusOnCPU},
		{"new untouched", domain.TaskStatusNew, &fakeBackend{state: cluster.JobDone}, domain.TaskStatusNew},
		{"data ready untouched", domain.TaskStatusDataReady, &fakeBackend{state: cluster.JobFailed}, domain.TaskStatusDataReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask(tt.status, "diagnostics", nil)
			task.ClusterJobID = "job-1"
			store := newMemStore(task)
			m := New(Config{Store: store, Backend: tt.backend})

			got, tr, err := m.UpdateStatus(context.Background(), task)
			require.NoError(t, err)
			assert.False(t, tr.IsRejected())
			assert.Equal(t, domain.Applied(tt.status, tt.want), tr)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want, store.status(task.ID))
		})
	}
}

func TestUpdateStatus_LostRaceReloads(t *testing.T) {
	task := newTask(domain.TaskStatusQueued, "diagnostics", nil)
	store := newMemStore(task)
	store.tasks[task.ID].Status = domain.TaskStatusDataReady // другой воркер уже обновил
	m := New(Config{Store: store, Backend: &fakeBackend{state: cluster.JobRunning}})

	got, tr, err := m.UpdateStatus(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.Rejected(domain.TaskStatusQueued, domain.TaskStatusOnCPU), tr)
	assert.Equal(t, domain.TaskStatusDataReady, got.Status)
}

func TestUpdateStatus_RaceToCompletedIsRejected(t *testing.T) {
	task := newTask(domain.TaskStatusOnCPU, "diagnostics", nil)
	task.ClusterJobID = "job-1"
	store := newMemStore(task)
	// Другой воркер довёл task до конца, пока мы спрашивали кластер.
	store.beforeTransition = func(id uuid.UUID, _, _ domain.TaskStatus) {
		store.mu.Lock()
		store.tasks[id].Status = domain.TaskStatusCompleted
		store.mu.Unlock()
	}
	m := New(Config{Store: store, Backend: &fakeBackend{state: cluster.JobDone}})

	got, tr, err := m.UpdateStatus(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, tr.IsRejected())
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
}

func TestUpdateStatus_LostJobLogsOnlyWhenApplied(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		task := newTask(domain.TaskStatusOnCPU, "diagnostics", nil)
		task.ClusterJobID = "job-7"
		store := newMemStore(task)
		m := New(Config{Store: store, Backend: &fakeBackend{stateErr: cluster.ErrJobNotFound}})

		_, tr, err := m.UpdateStatus(context.Background(), task)
		require.NoError(t, err)
		assert.False(t, tr.IsRejected())
		assert.Equal(t, []string{"Cluster lost track of job job-7"}, store.log(task.ID))
	})

	t.Run("rejected", func(t *testing.T) {
		task := newTask(domain.TaskStatusOnCPU, "diagnostics", nil)
		task.ClusterJobID = "job-7"
		store := newMemStore(task)
		store.tasks[task.ID].Status = domain.TaskStatusDataReady
		m := New(Config{Store: store, Backend: &fakeBackend{stateErr: cluster.ErrJobNotFound}})

		_, tr, err := m.UpdateStatus(context.Background(), task)
		require.NoError(t, err)
		assert.True(t, tr.IsRejected())
		assert.Empty(t, store.log(task.ID))
	})
}
