package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// schema is applied in order. Every statement must be safe to re-run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            email VARCHAR(255) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

	// content holds legacy plaintext or an ENC: blob; the server never
	// stores a room key.
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            content TEXT NOT NULL,
            author_id INT REFERENCES users(id) ON DELETE CASCADE,
            author_name VARCHAR(64) NOT NULL,
            is_anonymous BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            expires_at TIMESTAMPTZ NOT NULL,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            CHECK (expires_at > created_at)
        )`,

	`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_expires_at ON messages (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_soft_deleted ON messages (created_at) WHERE is_deleted`,

	`CREATE TABLE IF NOT EXISTS deletion_logs (
            id SERIAL PRIMARY KEY,
            event_type VARCHAR(64) NOT NULL,
            deleted_count BIGINT NOT NULL DEFAULT 0,
            soft_deleted_count BIGINT NOT NULL DEFAULT 0,
            executed_at TIMESTAMPTZ NOT NULL,
            success BOOLEAN NOT NULL,
            error TEXT
        )`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
