package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Bourreau/internal/domain"
)

// uniqueViolation — SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

const taskColumns = `
	id, resource_id, user_id, name, type, status, params,
	cluster_job_id, work_dir, log, created_at, updated_at`

// TaskRepo — репозиторий для работы с tasks.
//
// Статус task меняется только через Transition: UPDATE с условием на
// текущий статус. Это и есть guard, который разрешает гонки между
// воркерами.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create создаёт новый task.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	paramsJSON, err := json.Marshal(task.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	logJSON, err := marshalLog(task.Log)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, resource_id, user_id, name, type, status, params, log, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.ResourceID,
		task.UserID,
		task.Name,
		task.Type,
		task.Status,
		paramsJSON,
		logJSON,
		task.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID возвращает task по ID (всегда свежее состояние из БД).
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE id = $1
	`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// FindActionable возвращает tasks ресурса resourceID в статусах statuses,
// в порядке создания.
func (r *TaskRepo) FindActionable(ctx context.Context, resourceID uuid.UUID, statuses []domain.TaskStatus) ([]domain.Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE resource_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, resourceID, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("find actionable tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListByStatus возвращает tasks ресурса, опционально отфильтрованные по статусу.
func (r *TaskRepo) ListByStatus(ctx context.Context, resourceID uuid.UUID, status domain.TaskStatus, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE resource_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, resourceID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// Transition переводит task из from в to, только если в БД сейчас from.
//
// Если статус уже другой, возвращает Rejected без ошибки.
// Ошибка означает сбой БД.
func (r *TaskRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus) (domain.Transition, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return domain.Transition{}, fmt.Errorf("transition task %s %q -> %q: %w", id, from, to, err)
	}
	if result.RowsAffected() == 0 {
		return domain.Rejected(from, to), nil
	}
	return domain.Applied(from, to), nil
}

// SaveJob сохраняет ClusterJobID и WorkDir task.
func (r *TaskRepo) SaveJob(ctx context.Context, task *domain.Task) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET cluster_job_id = $2, work_dir = $3, updated_at = now()
		WHERE id = $1
	`, task.ID, nullString(task.ClusterJobID), nullString(task.WorkDir))
	if err != nil {
		return fmt.Errorf("save task job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendLog дописывает записи в журнал task.
func (r *TaskRepo) AppendLog(ctx context.Context, id uuid.UUID, entries ...domain.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	logJSON, err := marshalLog(entries)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET log = log || $2::jsonb
		WHERE id = $1
	`, id, logJSON)
	if err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus возвращает количество tasks ресурса по статусам.
func (r *TaskRepo) CountByStatus(ctx context.Context, resourceID uuid.UUID) (map[domain.TaskStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM tasks WHERE resource_id = $1 GROUP BY status
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status domain.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Helpers ---

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// scanTask читает одну строку; pgx.Rows тоже реализует pgx.Row.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var paramsJSON, logJSON []byte
	var clusterJobID, workDir *string

	err := row.Scan(
		&task.ID,
		&task.ResourceID,
		&task.UserID,
		&task.Name,
		&task.Type,
		&task.Status,
		&paramsJSON,
		&clusterJobID,
		&workDir,
		&logJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &task.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	if logJSON != nil {
		if err := json.Unmarshal(logJSON, &task.Log); err != nil {
			return nil, fmt.Errorf("unmarshal log: %w", err)
		}
	}
	if clusterJobID != nil {
		task.ClusterJobID = *clusterJobID
	}
	if workDir != nil {
		task.WorkDir = *workDir
	}

	return &task, nil
}

func marshalLog(entries []domain.LogEntry) ([]byte, error) {
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal log: %w", err)
	}
	return b, nil
}

func statusStrings(statuses []domain.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
