package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkerResponse — состояние воркера из API.
type WorkerResponse struct {
	ResourceID    string         `json:"resource_id"`
	Name          string         `json:"name"`
	PID           int            `json:"pid"`
	Mode          string         `json:"mode"`
	SleepUntil    string         `json:"sleep_until,omitempty"`
	StopRequested bool           `json:"stop_requested"`
	Tasks         map[string]int `json:"tasks,omitempty"`
}

// WakeResponse — ответ на wake.
type WakeResponse struct {
	Woke bool `json:"woke"`
}

// StopResponse — ответ на stop.
type StopResponse struct {
	StopRequested bool `json:"stop_requested"`
}

// TaskSummary — task в списке.
type TaskSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	ClusterJobID string `json:"cluster_job_id,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

// LogEntry — запись журнала task.
type LogEntry struct {
	Time string `json:"time"`
	Text string `json:"text"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID           string         `json:"id"`
	ResourceID   string         `json:"resource_id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	Params       map[string]any `json:"params,omitempty"`
	ClusterJobID string         `json:"cluster_job_id,omitempty"`
	WorkDir      string         `json:"work_dir,omitempty"`
	Log          []LogEntry     `json:"log"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// SubmitTaskRequest — новая task.
type SubmitTaskRequest struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	UserID string         `json:"user_id"`
	Params map[string]any `json:"params,omitempty"`
}

// MessageResponse — уведомление пользователя.
type MessageResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Header      string `json:"header"`
	Description string `json:"description,omitempty"`
	Reference   string `json:"reference,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ListTasksOpts — параметры фильтрации tasks.
type ListTasksOpts struct {
	Status string
	Limit  int
}

// --- API response wrappers ---

// envelope — {"data": ...} и {"data": [...], "total": N}.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул admin API.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для admin API воркера.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Worker ---

// WorkerStatus возвращает состояние воркера.
func (c *Client) WorkerStatus(ctx context.Context) (*WorkerResponse, error) {
	var w WorkerResponse
	return &w, c.call(ctx, http.MethodGet, "/api/v1/worker", nil, &w)
}

// Wake будит воркер.
func (c *Client) Wake(ctx context.Context) (*WakeResponse, error) {
	var r WakeResponse
	return &r, c.call(ctx, http.MethodPost, "/api/v1/worker/wake", nil, &r)
}

// Stop просит воркер остановиться.
func (c *Client) Stop(ctx context.Context) (*StopResponse, error) {
	var r StopResponse
	return &r, c.call(ctx, http.MethodPost, "/api/v1/worker/stop", nil, &r)
}

// --- Tasks ---

// ListTasks возвращает tasks ресурса.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOpts) ([]TaskSummary, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskSummary
	return tasks, c.call(ctx, http.MethodGet, "/api/v1/tasks", query, &tasks)
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(ctx context.Context, id string) (*TaskResponse, error) {
	var task TaskResponse
	return &task, c.call(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &task)
}

// SubmitTask создаёт task на ресурсе воркера.
func (c *Client) SubmitTask(ctx context.Context, req SubmitTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	return &task, c.send(ctx, http.MethodPost, "/api/v1/tasks", nil, req, &task)
}

// --- Messages ---

// ListMessages возвращает последние уведомления пользователя.
func (c *Client) ListMessages(ctx context.Context, userID string, limit int) ([]MessageResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var msgs []MessageResponse
	return msgs, c.call(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/messages", query, &msgs)
}

// --- HTTP ---

// call выполняет запрос без тела.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, result any) error {
	return c.send(ctx, method, path, query, nil, result)
}

// send выполняет запрос и раскладывает поле data ответа в result.
// Ошибка API возвращается как *APIError.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, result any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Code == "" {
		apiErr.Code = "HTTP_" + strconv.Itoa(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Code = er.Error.Code
	apiErr.Message = er.Error.Message
	apiErr.RequestID = er.Error.RequestID
	return apiErr
}
