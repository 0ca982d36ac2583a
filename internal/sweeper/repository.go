package sweeper

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository runs the sweep statements against Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) PurgeSoftDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE is_deleted = TRUE AND created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge soft-deleted messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) AppendAudit(ctx context.Context, e *AuditEntry) error {
	query := `INSERT INTO deletion_logs (event_type, deleted_count, soft_deleted_count, executed_at, success, error)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		e.EventType, e.DeletedCount, e.SoftDeletedCount, e.ExecutedAt, e.Success, errText)
	if err != nil {
		return fmt.Errorf("append deletion log: %w", err)
	}
	return nil
}
