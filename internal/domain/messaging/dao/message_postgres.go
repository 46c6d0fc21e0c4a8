package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
)

// MessagePostgres implements message repository for PostgreSQL
type MessagePostgres struct {
	pool *pgxpool.Pool
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(pool *pgxpool.Pool) *MessagePostgres {
	return &MessagePostgres{pool: pool}
}

// Append inserts the message, bumps every other participant's unread counter
// and refreshes the conversation's last message, all in one transaction so a
// crash cannot leave the counters diverged from the log.
func (r *MessagePostgres) Append(ctx context.Context, msg *entity.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO dm_messages (
			id, conversation_id, sender_id, content, status, reply_to,
			is_system, attachment_url, read_by, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', $9)
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		msg.Status,
		msg.ReplyTo,
		msg.IsSystem,
		msg.AttachmentURL,
		msg.Timestamp,
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE dm_participants SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id <> $2
	`, msg.ConversationID, msg.SenderID); err != nil {
		return fmt.Errorf("incrementing unread counters: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE dm_conversations
		SET last_message_text = $2, last_message_sender_id = $3,
		    last_message_at = $4, updated_at = $4
		WHERE id = $1
	`, msg.ConversationID, msg.Content, msg.SenderID, msg.Timestamp); err != nil {
		return fmt.Errorf("updating last message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing message append: %w", err)
	}

	return nil
}

// GetByID retrieves a message within a conversation
func (r *MessagePostgres) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, content, status, reply_to,
		       is_system, attachment_url, read_by, sent_at
		FROM dm_messages
		WHERE conversation_id = $1 AND id = $2
	`, conversationID, messageID)

	msg, err := scanMessage(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return msg, nil
}

// GetByConversationID retrieves all messages of a conversation in append order
func (r *MessagePostgres) GetByConversationID(ctx context.Context, conversationID string) ([]entity.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, status, reply_to,
		       is_system, attachment_url, read_by, sent_at
		FROM dm_messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []entity.Message
	for rows.Next() {
		msg, err := scanMessageFromRows(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	return messages, nil
}

// MarkRead advances status to read and records the reader on every message
// the user did not author. Re-running it is a no-op.
func (r *MessagePostgres) MarkRead(ctx context.Context, conversationID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dm_messages
		SET status = 'read',
		    read_by = CASE WHEN $2 = ANY(read_by) THEN read_by ELSE array_append(read_by, $2) END
		WHERE conversation_id = $1 AND sender_id <> $2
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}
	return nil
}

// Tombstone replaces the content with the deletion placeholder. Identity,
// sender and timestamp stay untouched so replies keep resolving.
func (r *MessagePostgres) Tombstone(ctx context.Context, conversationID, messageID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dm_messages
		SET content = $3, is_system = TRUE, attachment_url = ''
		WHERE conversation_id = $1 AND id = $2
	`, conversationID, messageID, entity.TombstoneContent)
	if err != nil {
		return fmt.Errorf("tombstoning message: %w", err)
	}
	return nil
}

// scanMessage scans a single message row
func scanMessage(row pgx.Row) (*entity.Message, error) {
	var msg entity.Message
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.Status,
		&msg.ReplyTo,
		&msg.IsSystem,
		&msg.AttachmentURL,
		&msg.ReadBy,
		&msg.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// scanMessageFromRows scans a message from a multi-row result
func scanMessageFromRows(rows pgx.Rows) (*entity.Message, error) {
	msg, err := scanMessage(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning message row: %w", err)
	}
	return msg, nil
}
