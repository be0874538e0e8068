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

// Schema is applied in order by AutoMigrate. Every statement is idempotent.
//
// messages.chat_id has no foreign key: the one-on-one delete path removes
// the chat row before its messages, and the cascade coordinator owns message cleanup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		full_name VARCHAR(120) NOT NULL DEFAULT '',
		email VARCHAR(255) UNIQUE NOT NULL,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		password VARCHAR(255) NOT NULL,
		profile_url TEXT NOT NULL DEFAULT '',
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS chats (
		id UUID PRIMARY KEY,
		chat_name TEXT,
		is_group_chat BOOLEAN NOT NULL DEFAULT FALSE,
		description VARCHAR(250) NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		avatar_external_id TEXT,
		latest_message_id UUID,
		group_admin_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE SEQUENCE IF NOT EXISTS chat_participants_ordinal_seq`,

	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id UUID REFERENCES chats(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		role VARCHAR(10) NOT NULL CHECK (role IN ('admin', 'member')) DEFAULT 'member',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		left_at TIMESTAMPTZ,
		ordinal BIGINT NOT NULL DEFAULT nextval('chat_participants_ordinal_seq'),
		PRIMARY KEY (chat_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS chat_participants_user_idx ON chat_participants (user_id) WHERE left_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		chat_id UUID NOT NULL,
		sender_id UUID NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		pinned BOOLEAN NOT NULL DEFAULT FALSE,
		reply_to_id UUID,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		attachments JSONB NOT NULL DEFAULT '[]'::jsonb,
		reactions JSONB NOT NULL DEFAULT '[]'::jsonb,
		status JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages (chat_id, created_at DESC)`,
}

func (d *Database) AutoMigrate() error {
	for _, query := range Schema {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
