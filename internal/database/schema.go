package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements holds the idempotent DDL for the messaging core and the
// directory tables it reads. Applied at startup; safe to re-run.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL,
		school_id TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		PRIMARY KEY (school_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id TEXT NOT NULL,
		school_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (school_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS class_students (
		school_id TEXT NOT NULL,
		class_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		PRIMARY KEY (school_id, class_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dm_conversations (
		id TEXT PRIMARY KEY,
		school_id TEXT NOT NULL,
		conversation_type TEXT NOT NULL,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		group_name TEXT NOT NULL DEFAULT '',
		pair_key TEXT NOT NULL DEFAULT '',
		last_message_text TEXT NOT NULL DEFAULT '',
		last_message_sender_id TEXT NOT NULL DEFAULT '',
		last_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_dm_conversations_pair
		ON dm_conversations (school_id, pair_key) WHERE pair_key <> ''`,
	`CREATE TABLE IF NOT EXISTS dm_participants (
		conversation_id TEXT NOT NULL REFERENCES dm_conversations (id),
		user_id TEXT NOT NULL,
		unread_count INT NOT NULL DEFAULT 0,
		ord INT NOT NULL DEFAULT 0,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dm_participants_user
		ON dm_participants (user_id)`,
	`CREATE TABLE IF NOT EXISTS dm_messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES dm_conversations (id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'sent',
		reply_to TEXT NOT NULL DEFAULT '',
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		attachment_url TEXT NOT NULL DEFAULT '',
		read_by TEXT[] NOT NULL DEFAULT '{}',
		sent_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dm_messages_conversation
		ON dm_messages (conversation_id, sent_at)`,
}

// Bootstrap applies the schema to the connected database
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
