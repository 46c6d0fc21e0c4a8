package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
)

// ConversationPostgres implements conversation repository for PostgreSQL
type ConversationPostgres struct {
	pool *pgxpool.Pool
}

// NewConversationPostgres creates a new PostgreSQL conversation repository
func NewConversationPostgres(pool *pgxpool.Pool) *ConversationPostgres {
	return &ConversationPostgres{pool: pool}
}

// Create inserts a conversation with its participant rows in one transaction.
// Direct conversations hit a partial unique index on (school_id, pair_key);
// on conflict the insert is dropped and conv is replaced with the stored row,
// so two racing find-or-create calls converge on one conversation.
func (r *ConversationPostgres) Create(ctx context.Context, conv *entity.Conversation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO dm_conversations (
			id, school_id, conversation_type, is_group, group_name, pair_key,
			last_message_text, last_message_sender_id, last_message_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, '', '', NULL, $7, $8)
		ON CONFLICT (school_id, pair_key) WHERE pair_key <> '' DO NOTHING
	`,
		conv.ID,
		conv.SchoolID,
		conv.Type,
		conv.IsGroup,
		conv.GroupName,
		conv.PairKey,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race on the pair key: adopt the existing conversation.
		existing, err := r.GetByPairKey(ctx, conv.SchoolID, conv.PairKey)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("conversation conflict without existing row for pair %q", conv.PairKey)
		}
		*conv = *existing
		return nil
	}

	for i, userID := range conv.Participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dm_participants (conversation_id, user_id, unread_count, ord)
			VALUES ($1, $2, $3, $4)
		`, conv.ID, userID, conv.Unread[userID], i); err != nil {
			return fmt.Errorf("inserting participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	return nil
}

// GetByID retrieves a conversation with participants and unread counters,
// without its message log.
func (r *ConversationPostgres) GetByID(ctx context.Context, schoolID, id string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, school_id, conversation_type, is_group, group_name, pair_key,
		       last_message_text, last_message_sender_id, last_message_at,
		       created_at, updated_at
		FROM dm_conversations
		WHERE school_id = $1 AND id = $2
	`, schoolID, id)

	conv, err := r.scanConversation(row)
	if err != nil || conv == nil {
		return conv, err
	}

	if err := r.attachParticipants(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetByPairKey retrieves the direct conversation for a pair key
func (r *ConversationPostgres) GetByPairKey(ctx context.Context, schoolID, pairKey string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, school_id, conversation_type, is_group, group_name, pair_key,
		       last_message_text, last_message_sender_id, last_message_at,
		       created_at, updated_at
		FROM dm_conversations
		WHERE school_id = $1 AND pair_key = $2
	`, schoolID, pairKey)

	conv, err := r.scanConversation(row)
	if err != nil || conv == nil {
		return conv, err
	}

	if err := r.attachParticipants(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListByParticipant retrieves all conversations for a user, most recent
// activity first, with participants and message logs attached.
func (r *ConversationPostgres) ListByParticipant(ctx context.Context, schoolID, userID string) ([]entity.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.school_id, c.conversation_type, c.is_group, c.group_name, c.pair_key,
		       c.last_message_text, c.last_message_sender_id, c.last_message_at,
		       c.created_at, c.updated_at
		FROM dm_conversations c
		JOIN dm_participants p ON p.conversation_id = c.id
		WHERE c.school_id = $1 AND p.user_id = $2
		ORDER BY c.last_message_at DESC NULLS LAST, c.updated_at DESC
	`, schoolID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	conversations, err := r.scanConversations(rows)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return conversations, nil
	}

	ids := make([]string, len(conversations))
	index := make(map[string]*entity.Conversation, len(conversations))
	for i := range conversations {
		ids[i] = conversations[i].ID
		index[conversations[i].ID] = &conversations[i]
	}

	if err := r.attachParticipantsBulk(ctx, ids, index); err != nil {
		return nil, err
	}
	if err := r.attachMessagesBulk(ctx, ids, index); err != nil {
		return nil, err
	}

	return conversations, nil
}

// ClearUnread resets a participant's unread counter to zero
func (r *ConversationPostgres) ClearUnread(ctx context.Context, conversationID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dm_participants SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("clearing unread counter: %w", err)
	}
	return nil
}

// attachParticipants loads the participant set and unread map for one conversation
func (r *ConversationPostgres) attachParticipants(ctx context.Context, conv *entity.Conversation) error {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, unread_count
		FROM dm_participants
		WHERE conversation_id = $1
		ORDER BY ord
	`, conv.ID)
	if err != nil {
		return fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	conv.Participants = nil
	conv.Unread = map[string]int{}
	for rows.Next() {
		var userID string
		var unread int
		if err := rows.Scan(&userID, &unread); err != nil {
			return fmt.Errorf("scanning participant row: %w", err)
		}
		conv.Participants = append(conv.Participants, userID)
		if unread != 0 {
			conv.Unread[userID] = unread
		}
	}

	return nil
}

// attachParticipantsBulk loads participants for a set of conversations
func (r *ConversationPostgres) attachParticipantsBulk(ctx context.Context, ids []string, index map[string]*entity.Conversation) error {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, user_id, unread_count
		FROM dm_participants
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, ord
	`, ids)
	if err != nil {
		return fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	for _, conv := range index {
		conv.Participants = nil
		conv.Unread = map[string]int{}
	}

	for rows.Next() {
		var convID, userID string
		var unread int
		if err := rows.Scan(&convID, &userID, &unread); err != nil {
			return fmt.Errorf("scanning participant row: %w", err)
		}
		conv, ok := index[convID]
		if !ok {
			continue
		}
		conv.Participants = append(conv.Participants, userID)
		if unread != 0 {
			conv.Unread[userID] = unread
		}
	}

	return nil
}

// attachMessagesBulk loads message logs for a set of conversations in append order
func (r *ConversationPostgres) attachMessagesBulk(ctx context.Context, ids []string, index map[string]*entity.Conversation) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, status, reply_to,
		       is_system, attachment_url, read_by, sent_at
		FROM dm_messages
		WHERE conversation_id = ANY($1)
		ORDER BY sent_at ASC, id ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessageFromRows(rows)
		if err != nil {
			return err
		}
		if conv, ok := index[msg.ConversationID]; ok {
			conv.Messages = append(conv.Messages, *msg)
		}
	}

	return nil
}

// scanConversation scans a single conversation row
func (r *ConversationPostgres) scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var conv entity.Conversation

	err := row.Scan(
		&conv.ID,
		&conv.SchoolID,
		&conv.Type,
		&conv.IsGroup,
		&conv.GroupName,
		&conv.PairKey,
		&conv.LastMessageText,
		&conv.LastMessageSenderID,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	return &conv, nil
}

// scanConversations scans multiple conversation rows
func (r *ConversationPostgres) scanConversations(rows pgx.Rows) ([]entity.Conversation, error) {
	var conversations []entity.Conversation

	for rows.Next() {
		var conv entity.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.SchoolID,
			&conv.Type,
			&conv.IsGroup,
			&conv.GroupName,
			&conv.PairKey,
			&conv.LastMessageText,
			&conv.LastMessageSenderID,
			&conv.LastMessageAt,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}
