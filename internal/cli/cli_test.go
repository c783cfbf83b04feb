package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiStub struct {
	t         *testing.T
	requests  []string
	submitted map[string]any
}

func (s *apiStub) handler() http.Handler {
	mux := chi.NewRouter()
	write := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(s.t, json.NewEncoder(w).Encode(body))
	}

	mux.Get("/api/v1/worker", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"resource_id":    "6f0a2b4e-0000-0000-0000-000000000001",
			"name":           "BourreauWorker host/42",
			"pid":            42,
			"mode":           "sleep",
			"sleep_until":    "2026-10-19T12:00:00Z",
			"stop_requested": false,
			"tasks":          map[string]int{"On CPU": 2, "New": 1},
		}})
	})
	mux.Post("/api/v1/worker/wake", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		write(w, http.StatusAccepted, map[string]any{"data": map[string]any{"woke": true}})
	})
	mux.Post("/api/v1/worker/stop", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		write(w, http.StatusAccepted, map[string]any{"data": map[string]any{"stop_requested": true}})
	})
	mux.Get("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		write(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{
				"id":         "t-1",
				"name":       "diag",
				"type":       "diagnostics",
				"status":     "On CPU",
				"updated_at": "2026-10-19T11:00:00Z",
			}},
			"total": 1,
		})
	})
	mux.Get("/api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		if chi.URLParam(r, "id") != "t-1" {
			write(w, http.StatusNotFound, map[string]any{"error": map[string]any{
				"code":    "NOT_FOUND",
				"message": "task not found",
			}})
			return
		}
		write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id":     "t-1",
			"name":   "diag",
			"type":   "diagnostics",
			"status": "Completed",
			"log": []map[string]any{
				{"time": "2026-10-19T11:00:00Z", "text": "BourreauWorker: Post Processing, PID=42"},
			},
		}})
	})
	mux.Post("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		var req map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		s.submitted = req
		write(w, http.StatusCreated, map[string]any{"data": map[string]any{
			"id":     "t-2",
			"name":   req["name"],
			"type":   req["type"],
			"status": "New",
		}})
	})
	mux.Get("/api/v1/users/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		write(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{
				"id":         "m-1",
				"type":       "notice",
				"header":     "Task diag Completed Successfully",
				"reference":  "/tasks/t-1",
				"created_at": "2026-10-19T11:05:00Z",
			}},
			"total": 1,
		})
	})
	return mux
}

func newStub(t *testing.T) (*apiStub, *Client) {
	t.Helper()
	stub := &apiStub{t: t}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return stub, NewClient(srv.URL + "/")
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestClient_WorkerStatus(t *testing.T) {
	_, client := newStub(t)

	w, err := client.WorkerStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 42, w.PID)
	assert.Equal(t, "sleep", w.Mode)
	assert.Equal(t, 2, w.Tasks["On CPU"])
}

func TestClient_ListTasks_Query(t *testing.T) {
	stub, client := newStub(t)

	tasks, err := client.ListTasks(context.Background(), ListTasksOpts{Status: "On CPU", Limit: 5})
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, "t-1", tasks[0].ID)
	assert.Equal(t, []string{"GET /api/v1/tasks?limit=5&status=On+CPU"}, stub.requests)
}

func TestClient_GetTask_NotFound(t *testing.T) {
	_, client := newStub(t)

	_, err := client.GetTask(context.Background(), "missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "NOT_FOUND: task not found", err.Error())
}

func TestWorkerCmd_Status_Table(t *testing.T) {
	_, client := newStub(t)
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	cmd := NewWorkerCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "status"))

	text := stdout.String()
	assert.Contains(t, text, "BourreauWorker host/42")
	assert.Contains(t, text, "2026-10-19 12:00:00")
	// статусы отсортированы
	assert.Less(t, bytes.Index(stdout.Bytes(), []byte("New")), bytes.Index(stdout.Bytes(), []byte("On CPU")))
}

func TestWorkerCmd_WakeAndStop(t *testing.T) {
	stub, client := newStub(t)
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	cmd := NewWorkerCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "wake"))

	cmd = NewWorkerCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "stop"))

	assert.Equal(t, []string{"POST /api/v1/worker/wake", "POST /api/v1/worker/stop"}, stub.requests)
	assert.Equal(t, "Worker woken up\nStop requested\n", stderr.String())
	assert.Empty(t, stdout.String())
}

func TestTaskCmd_List_JSON(t *testing.T) {
	_, client := newStub(t)
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(true, &stdout, &stderr)

	cmd := NewTaskCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "list"))

	var tasks []TaskSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "On CPU", tasks[0].Status)
}

func TestTaskCmd_Show(t *testing.T) {
	_, client := newStub(t)
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	cmd := NewTaskCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "show", "t-1"))

	assert.Regexp(t, `Status:\s+Completed`, stdout.String())
	assert.NotContains(t, stdout.String(), "Work dir:")
	assert.Contains(t, stdout.String(), "BourreauWorker: Post Processing, PID=42")
}

func TestTaskCmd_Show_RequiresID(t *testing.T) {
	_, client := newStub(t)
	out := NewOutputTo(false, &bytes.Buffer{}, &bytes.Buffer{})

	cmd := NewTaskCmd(func() *Client { return client }, func() *Output { return out })
	assert.Error(t, execute(t, cmd, "show"))
}

func TestDisplayTime(t *testing.T) {
	assert.Equal(t, "-", displayTime(""))
	assert.Equal(t, "2026-10-19 09:30:00", displayTime("2026-10-19T12:30:00+03:00"))
	assert.Equal(t, "yesterday", displayTime("yesterday"))
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).WorkerStatus(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "HTTP_502", apiErr.Code)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestTaskCmd_Submit(t *testing.T) {
	stub, client := newStub(t)
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	cmd := NewTaskCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "submit",
		"--name", "diag",
		"--type", "diagnostics",
		"--user", "0b8e5a8e-0000-0000-0000-000000000002",
		"--param", "duration_sec=5",
		"--param", "fail_setup=true",
		"--param", "command=ls -la",
	))

	assert.Equal(t, []string{"POST /api/v1/tasks"}, stub.requests)
	assert.Equal(t, "diag", stub.submitted["name"])
	assert.Equal(t, "0b8e5a8e-0000-0000-0000-000000000002", stub.submitted["user_id"])
	assert.Equal(t, map[string]any{
		"duration_sec": 5.0,
		"fail_setup":   true,
		"command":      "ls -la",
	}, stub.submitted["params"])
	assert.Equal(t, "Task t-2 submitted (New)\n", stderr.String())
}

func TestTaskCmd_Submit_RequiresFlags(t *testing.T) {
	stub, client := newStub(t)
	out := NewOutputTo(false, &bytes.Buffer{}, &bytes.Buffer{})

	cmd := NewTaskCmd(func() *Client { return client }, func() *Output { return out })
	assert.Error(t, execute(t, cmd, "submit", "--name", "diag"))
	assert.Empty(t, stub.requests)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)

	params, err = parseParams([]string{"a=1", "b=text", "c={\"k\":[1,2]}", "d="})
	require.NoError(t, err)
	assert.Equal(t, 1.0, params["a"])
	assert.Equal(t, "text", params["b"])
	assert.Equal(t, map[string]any{"k": []any{1.0, 2.0}}, params["c"])
	assert.Equal(t, "", params["d"])
}

func TestMessageCmd_List(t *testing.T) {
	stub, client := newStub(t)
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, &bytes.Buffer{})

	cmd := NewMessageCmd(func() *Client { return client }, func() *Output { return out })
	require.NoError(t, execute(t, cmd, "list", "u-1", "--limit", "3"))

	assert.Equal(t, []string{"GET /api/v1/users/u-1/messages?limit=3"}, stub.requests)
	assert.Contains(t, stdout.String(), "Task diag Completed Successfully")
	assert.Contains(t, stdout.String(), "2026-10-19 11:05:00")
}
