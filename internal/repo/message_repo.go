package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Bourreau/internal/domain"
)

// MessageRepo — репозиторий уведомлений пользователям.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo создаёт новый MessageRepo.
func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Create сохраняет уведомление.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, user_id, type, header, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		msg.ID,
		msg.UserID,
		msg.Type,
		msg.Header,
		nullString(msg.Description),
		nullString(msg.Reference),
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListByUser возвращает последние уведомления пользователя.
func (r *MessageRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, header, COALESCE(description, ''), COALESCE(reference, ''), created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Type, &m.Header, &m.Description, &m.Reference, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
