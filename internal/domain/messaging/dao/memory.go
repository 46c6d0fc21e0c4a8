package dao

import (
	"context"
	"sync"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
)

// memoryState is the shared backing store for the in-memory repositories.
// It mirrors the PostgreSQL semantics: pair-key uniqueness on create, atomic
// unread increments on append, idempotent mark-read and tombstoning.
type memoryState struct {
	mu       sync.Mutex
	convs    map[string]*entity.Conversation
	messages map[string][]entity.Message
	pairs    map[string]string // schoolID+pairKey -> conversationID
	order    []string          // creation order of conversation ids
}

// ConversationMemory is the in-memory conversation repository
type ConversationMemory struct {
	state *memoryState
}

// MessageMemory is the in-memory message repository
type MessageMemory struct {
	state *memoryState
}

// NewMemory creates a paired set of in-memory repositories over one store.
// Intended for unit tests.
func NewMemory() (*ConversationMemory, *MessageMemory) {
	state := &memoryState{
		convs:    map[string]*entity.Conversation{},
		messages: map[string][]entity.Message{},
		pairs:    map[string]string{},
	}
	return &ConversationMemory{state: state}, &MessageMemory{state: state}
}

func pairIndexKey(schoolID, pairKey string) string {
	return schoolID + "/" + pairKey
}

// Create inserts a conversation; on a pair-key conflict the existing
// conversation wins and conv is overwritten with it.
func (r *ConversationMemory) Create(ctx context.Context, conv *entity.Conversation) error {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.PairKey != "" {
		if existingID, ok := s.pairs[pairIndexKey(conv.SchoolID, conv.PairKey)]; ok {
			*conv = *s.cloneConversation(s.convs[existingID], false)
			return nil
		}
		s.pairs[pairIndexKey(conv.SchoolID, conv.PairKey)] = conv.ID
	}

	s.convs[conv.ID] = s.cloneConversation(conv, false)
	s.order = append(s.order, conv.ID)
	return nil
}

// GetByID retrieves a conversation without its message log
func (r *ConversationMemory) GetByID(ctx context.Context, schoolID, id string) (*entity.Conversation, error) {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok || conv.SchoolID != schoolID {
		return nil, nil
	}
	return s.cloneConversation(conv, false), nil
}

// GetByPairKey retrieves the direct conversation for a pair key
func (r *ConversationMemory) GetByPairKey(ctx context.Context, schoolID, pairKey string) (*entity.Conversation, error) {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pairs[pairIndexKey(schoolID, pairKey)]
	if !ok {
		return nil, nil
	}
	return s.cloneConversation(s.convs[id], false), nil
}

// ListByParticipant retrieves the user's conversations with messages attached
func (r *ConversationMemory) ListByParticipant(ctx context.Context, schoolID, userID string) ([]entity.Conversation, error) {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []entity.Conversation{}
	for _, id := range s.order {
		conv := s.convs[id]
		if conv.SchoolID != schoolID || !conv.HasParticipant(userID) {
			continue
		}
		result = append(result, *s.cloneConversation(conv, true))
	}
	return result, nil
}

// ClearUnread resets a participant's unread counter
func (r *ConversationMemory) ClearUnread(ctx context.Context, conversationID, userID string) error {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.convs[conversationID]; ok {
		delete(conv.Unread, userID)
	}
	return nil
}

// Append inserts a message, bumps other participants' unread counters and
// refreshes the conversation's last message.
func (r *MessageMemory) Append(ctx context.Context, msg *entity.Message) error {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[msg.ConversationID]
	if !ok {
		return entity.ErrConversationNotFound
	}

	s.messages[conv.ID] = append(s.messages[conv.ID], *msg)

	for _, p := range conv.Participants {
		if p != msg.SenderID {
			conv.Unread[p]++
		}
	}

	ts := msg.Timestamp
	conv.LastMessageText = msg.Content
	conv.LastMessageSenderID = msg.SenderID
	conv.LastMessageAt = &ts
	conv.UpdatedAt = ts

	return nil
}

// GetByID retrieves a message within a conversation
func (r *MessageMemory) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range s.messages[conversationID] {
		if msg.ID == messageID {
			out := msg
			out.ReadBy = append([]string(nil), msg.ReadBy...)
			return &out, nil
		}
	}
	return nil, nil
}

// GetByConversationID retrieves all messages of a conversation in append order
func (r *MessageMemory) GetByConversationID(ctx context.Context, conversationID string) ([]entity.Message, error) {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]entity.Message(nil), s.messages[conversationID]...), nil
}

// MarkRead marks every message not authored by userID as read
func (r *MessageMemory) MarkRead(ctx context.Context, conversationID, userID string) error {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID == userID {
			continue
		}
		msgs[i].Status = entity.MessageStatusRead
		if !msgs[i].IsReadBy(userID) {
			msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
		}
	}
	return nil
}

// Tombstone replaces the message content with the deletion placeholder
func (r *MessageMemory) Tombstone(ctx context.Context, conversationID, messageID string) error {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = entity.TombstoneContent
			msgs[i].IsSystem = true
			msgs[i].AttachmentURL = ""
			return nil
		}
	}
	return entity.ErrMessageNotFound
}

// cloneConversation deep-copies a conversation, optionally with its messages
func (s *memoryState) cloneConversation(conv *entity.Conversation, withMessages bool) *entity.Conversation {
	out := *conv
	out.Participants = append([]string(nil), conv.Participants...)
	out.Unread = make(map[string]int, len(conv.Unread))
	for k, v := range conv.Unread {
		out.Unread[k] = v
	}
	if conv.LastMessageAt != nil {
		ts := *conv.LastMessageAt
		out.LastMessageAt = &ts
	}
	out.Messages = nil
	if withMessages {
		out.Messages = append([]entity.Message(nil), s.messages[conv.ID]...)
	}
	return &out
}
