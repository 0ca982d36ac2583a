package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HistoryLimit bounds the page loaded when a session joins.
const HistoryLimit = 100

// Repository is the Postgres-backed message store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, m *Message) error {
	query := `INSERT INTO messages (id, content, author_id, author_name, is_anonymous, created_at, expires_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Content, m.AuthorID, m.AuthorName, m.IsAnonymous, m.CreatedAt, m.ExpiresAt, m.IsDeleted)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SoftDelete flags a message as deleted. The author_id guard makes it a
// no-op for anyone but the author, which is reported as ErrNotFound.
func (r *Repository) SoftDelete(ctx context.Context, id string, authorID int) error {
	query := "UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND author_id = $2"
	res, err := r.db.ExecContext(ctx, query, id, authorID)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Recent returns the newest live messages, oldest first.
func (r *Repository) Recent(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	query := `
		SELECT id, content, author_id, author_name, is_anonymous, created_at, expires_at, is_deleted
		FROM (
			SELECT * FROM messages
			WHERE is_deleted = FALSE AND expires_at > $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.Content, &msg.AuthorID, &msg.AuthorName,
			&msg.IsAnonymous, &msg.CreatedAt, &msg.ExpiresAt, &msg.IsDeleted); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return messages, nil
}
