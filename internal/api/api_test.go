package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Bourreau/internal/domain"
	"github.com/shaiso/Bourreau/internal/repo"
	"github.com/shaiso/Bourreau/internal/worker"
)

type fakeWorker struct {
	status  worker.Status
	woke    bool
	stopped bool
}

func (f *fakeWorker) Status() worker.Status { return f.status }
func (f *fakeWorker) Wake() bool            { f.woke = true; return true }
func (f *fakeWorker) Stop()                 { f.stopped = true }

type fakeTasks struct {
	tasks      []domain.Task
	countErr   error
	findErr    error
	lastStatus domain.TaskStatus
	lastLimit  int
}

func (f *fakeTasks) Create(_ context.Context, task *domain.Task) error {
	f.tasks = append(f.tasks, *task)
	return nil
}

func (f *fakeTasks) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return &f.tasks[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeTasks) FindActionable(_ context.Context, _ uuid.UUID, statuses []domain.TaskStatus) ([]domain.Task, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []domain.Task
	for _, t := range f.tasks {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (f *fakeTasks) ListByStatus(_ context.Context, _ uuid.UUID, status domain.TaskStatus, limit int) ([]domain.Task, error) {
	f.lastStatus, f.lastLimit = status, limit
	var out []domain.Task
	for _, t := range f.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) CountByStatus(context.Context, uuid.UUID) (map[domain.TaskStatus]int, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	counts := make(map[domain.TaskStatus]int)
	for _, t := range f.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

type fakeMessages struct {
	byUser map[uuid.UUID][]domain.Message
}

func (f *fakeMessages) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.Message, error) {
	msgs := f.byUser[userID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

type fakeAnnouncer struct {
	err       error
	announced []uuid.UUID
}

func (f *fakeAnnouncer) PublishTaskSubmitted(_ context.Context, _ uuid.UUID, taskID uuid.UUID) error {
	f.announced = append(f.announced, taskID)
	return f.err
}

func setup(t *testing.T) (*httptest.Server, *fakeWorker, *fakeTasks) {
	t.Helper()
	w := &fakeWorker{status: worker.Status{Name: "BourreauWorker test/1", Mode: worker.ModeScan}}
	tasks := &fakeTasks{tasks: []domain.Task{
		{ID: uuid.New(), Name: "a", Status: domain.TaskStatusNew, CreatedAt: time.Now()},
		{ID: uuid.New(), Name: "b", Status: domain.TaskStatusCompleted, CreatedAt: time.Now()},
		{ID: uuid.New(), Name: "c", Status: domain.TaskStatusOnCPU, CreatedAt: time.Now()},
	}}
	h := NewHandler(Config{Worker: w, Tasks: tasks, ResourceID: uuid.New()})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, w, tasks
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealth(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetWorker(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/api/v1/worker")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data WorkerResponse `json:"data"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "BourreauWorker test/1", body.Data.Name)
	assert.Equal(t, worker.ModeScan, body.Data.Mode)
	assert.Equal(t, map[string]int{"New": 1, "Completed": 1, "On CPU": 1}, body.Data.Tasks)
}

func TestGetWorker_CountFailureStillAnswers(t *testing.T) {
	srv, _, tasks := setup(t)
	tasks.countErr = errors.New("db down")

	resp, err := http.Get(srv.URL + "/api/v1/worker")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWakeAndStop(t *testing.T) {
	srv, w, _ := setup(t)

	resp, err := http.Post(srv.URL+"/api/v1/worker/wake", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, w.woke)

	resp, err = http.Post(srv.URL+"/api/v1/worker/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, w.stopped)

	resp, err = http.Get(srv.URL + "/api/v1/worker/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListTasks(t *testing.T) {
	srv, _, tasks := setup(t)

	t.Run("actionable by default", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/tasks")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data []TaskSummary `json:"data"`
		}
		decode(t, resp, &body)
		require.Len(t, body.Data, 2)
		assert.Equal(t, "a", body.Data[0].Name)
		assert.Equal(t, "c", body.Data[1].Name)
	})

	t.Run("by status", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/tasks?status=Completed&limit=10")
		require.NoError(t, err)

		var body struct {
			Data []TaskSummary `json:"data"`
		}
		decode(t, resp, &body)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "b", body.Data[0].Name)
		assert.Equal(t, domain.TaskStatusCompleted, tasks.lastStatus)
		assert.Equal(t, 10, tasks.lastLimit)
	})

	t.Run("bad input", func(t *testing.T) {
		for _, query := range []string{"?status=Exploded", "?limit=-1", "?limit=x"} {
			resp, err := http.Get(srv.URL + "/api/v1/tasks" + query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
		}
	})
}

func TestGetTask(t *testing.T) {
	srv, _, tasks := setup(t)
	target := tasks.tasks[0]

	resp, err := http.Get(srv.URL + "/api/v1/tasks/" + target.ID.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data TaskResponse `json:"data"`
	}
	decode(t, resp, &body)
	assert.Equal(t, target.ID, body.Data.ID)
	assert.Equal(t, "New", body.Data.Status)
	assert.NotNil(t, body.Data.Log)

	resp, err = http.Get(srv.URL + "/api/v1/tasks/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/tasks/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecovery(t *testing.T) {
	h := Recovery(NewHandler(Config{}).logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTasks_InternalErrorHidesCause(t *testing.T) {
	srv, _, tasks := setup(t)
	tasks.findErr = errors.New("password authentication failed for user bourreau")

	resp, err := http.Get(srv.URL + "/api/v1/tasks")
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, ErrCodeInternalError, body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, ErrCodeNotFound, body.Error.Code)
}

func submit(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/tasks", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestSubmitTask(t *testing.T) {
	w := &fakeWorker{}
	tasks := &fakeTasks{}
	announcer := &fakeAnnouncer{}
	resourceID := uuid.New()
	h := NewHandler(Config{Worker: w, Tasks: tasks, Announcer: announcer, ResourceID: resourceID})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	userID := uuid.New()
	resp := submit(t, srv, `{"name":"diag","type":"diagnostics","user_id":"`+userID.String()+`","params":{"duration_sec":2}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Data TaskResponse `json:"data"`
	}
	decode(t, resp, &body)

	require.Len(t, tasks.tasks, 1)
	created := tasks.tasks[0]
	assert.Equal(t, body.Data.ID, created.ID)
	assert.Equal(t, domain.TaskStatusNew, created.Status)
	assert.Equal(t, resourceID, created.ResourceID)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, 2.0, created.Params["duration_sec"])

	assert.Equal(t, []uuid.UUID{created.ID}, announcer.announced)
	assert.False(t, w.woke, "announced tasks wake workers through AMQP")
}

func TestSubmitTask_AnnounceFailureWakesLocalWorker(t *testing.T) {
	w := &fakeWorker{}
	announcer := &fakeAnnouncer{err: errors.New("no channel")}
	h := NewHandler(Config{Worker: w, Tasks: &fakeTasks{}, Announcer: announcer})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	resp := submit(t, srv, `{"name":"x","type":"shell","user_id":"`+uuid.NewString()+`"}`)
	resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, w.woke)
}

func TestSubmitTask_Validation(t *testing.T) {
	srv, w, tasks := setup(t)
	before := len(tasks.tasks)

	for _, body := range []string{
		`{nope`,
		`{"type":"shell","user_id":"` + uuid.NewString() + `"}`,
		`{"name":"x","user_id":"` + uuid.NewString() + `"}`,
		`{"name":"x","type":"shell"}`,
		`{"name":"x","type":"shell","user_id":"not-a-uuid"}`,
	} {
		resp := submit(t, srv, body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	assert.Len(t, tasks.tasks, before)
	assert.False(t, w.woke)
}

func TestListUserMessages(t *testing.T) {
	userID := uuid.New()
	msgs := &fakeMessages{byUser: map[uuid.UUID][]domain.Message{
		userID: {
			{ID: uuid.New(), Type: domain.MessageTypeError, Header: "Task b Failed"},
			{ID: uuid.New(), Type: domain.MessageTypeNotice, Header: "Task a Completed Successfully"},
		},
	}}
	h := NewHandler(Config{Worker: &fakeWorker{}, Tasks: &fakeTasks{}, Messages: msgs})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/users/" + userID.String() + "/messages?limit=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []MessageResponse `json:"data"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "error", body.Data[0].Type)
	assert.Equal(t, "Task b Failed", body.Data[0].Header)

	resp, err = http.Get(srv.URL + "/api/v1/users/nobody/messages")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
