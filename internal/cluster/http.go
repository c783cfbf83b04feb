package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPBackend отправляет jobs в REST-шлюз планировщика кластера.
//
// API шлюза:
//   - POST {base}/jobs       body: JobSpec       → {"id": "..."}
//   - GET  {base}/jobs/{id}                      → {"state": "queued|running|done|failed"}
//
// Запросы ограничиваются rate limiter'ом, чтобы воркер не заваливал шлюз
// при больших пачках tasks.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// HTTPConfig — конфигурация HTTPBackend.
type HTTPConfig struct {
	// BaseURL — адрес шлюза (обязательно).
	BaseURL string

	// RatePerSec — максимальная частота запросов (default: без ограничения).
	RatePerSec float64

	// Timeout — таймаут одного запроса (default: 30s).
	Timeout time.Duration

	// Client — HTTP-клиент (опционально).
	Client *http.Client
}

// NewHTTPBackend создаёт HTTPBackend.
func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}

	return &HTTPBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

type submitResponse struct {
	ID string `json:"id"`
}

type stateResponse struct {
	State JobState `json:"state"`
}

// Submit отправляет job в шлюз.
func (b *HTTPBackend) Submit(ctx context.Context, spec JobSpec) (string, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("%w: marshal job: %v", ErrSubmitFailed, err)
	}

	var resp submitResponse
	status, err := b.do(ctx, http.MethodPost, b.baseURL+"/jobs", bytes.NewReader(body), &resp)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("%w: HTTP %d", ErrSubmitFailed, status)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: empty job id", ErrSubmitFailed)
	}
	return resp.ID, nil
}

// State запрашивает состояние job.
func (b *HTTPBackend) State(ctx context.Context, jobID string) (JobState, error) {
	var resp stateResponse
	status, err := b.do(ctx, http.MethodGet, b.baseURL+"/jobs/"+url.PathEscape(jobID), nil, &resp)
	if err != nil {
		return "", err
	}

	switch {
	case status == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	case status >= 400:
		return "", fmt.Errorf("%w: HTTP %d", ErrBackendRequest, status)
	}

	switch resp.State {
	case JobQueued, JobRunning, JobDone, JobFailed:
		return resp.State, nil
	default:
		return "", fmt.Errorf("%w: unknown job state %q", ErrBackendRequest, resp.State)
	}
}

// do выполняет запрос и декодирует JSON-ответ в out (только для 2xx).
func (b *HTTPBackend) do(ctx context.Context, method, target string, body io.Reader, out any) (int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: rate limit: %v", ErrBackendRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %v", ErrBackendRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", ErrBackendRequest, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return 0, fmt.Errorf("%w: decode response %q: %v", ErrBackendRequest, truncate(string(respBody), 200), err)
		}
	}

	return resp.StatusCode, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
