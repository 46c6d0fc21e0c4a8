package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
)

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	// Create inserts a conversation together with its participant set. For
	// direct conversations the store enforces uniqueness on the pair key: if
	// another conversation with the same pair key already exists, the existing
	// one wins and conv is overwritten with the stored row. This makes
	// find-or-create safe under concurrent calls from both participants.
	Create(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, schoolID, id string) (*entity.Conversation, error)
	GetByPairKey(ctx context.Context, schoolID, pairKey string) (*entity.Conversation, error)
	// ListByParticipant returns all conversations the user participates in,
	// each with its message log attached in append order.
	ListByParticipant(ctx context.Context, schoolID, userID string) ([]entity.Conversation, error)
	ClearUnread(ctx context.Context, conversationID, userID string) error
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	// Append inserts the message and, in the same atomic commit, increments
	// the unread counter of every participant except the sender and refreshes
	// the conversation's denormalized last message.
	Append(ctx context.Context, msg *entity.Message) error
	GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	GetByConversationID(ctx context.Context, conversationID string) ([]entity.Message, error)
	// MarkRead advances status to read on all messages not authored by userID
	// and records userID in their read-by sets.
	MarkRead(ctx context.Context, conversationID, userID string) error
	// Tombstone replaces the message content with the deletion placeholder and
	// flags it as a system message. Identity, sender and timestamp are kept.
	Tombstone(ctx context.Context, conversationID, messageID string) error
}

// DirectoryUser is a user record resolved through the directory
type DirectoryUser struct {
	ID        string
	FirstName string
	LastName  string
	Role      entity.Role
}

// DirectoryClass is a class record resolved through the directory
type DirectoryClass struct {
	ID   string
	Name string
}

// DirectoryProvider resolves users and classes for participant labelling and
// broadcast fan-out. Lookups return (nil, nil) when the record is missing.
type DirectoryProvider interface {
	GetUser(ctx context.Context, schoolID, userID string) (*DirectoryUser, error)
	ListUsersByRole(ctx context.Context, schoolID string, role entity.Role) ([]DirectoryUser, error)
	GetClass(ctx context.Context, schoolID, classID string) (*DirectoryClass, error)
	ListClassStudents(ctx context.Context, schoolID, classID string) ([]DirectoryUser, error)
}

// Service handles messaging business logic
type Service struct {
	convRepo  ConversationRepository
	msgRepo   MessageRepository
	directory DirectoryProvider
}

// New creates a new messaging service
func New(convRepo ConversationRepository, msgRepo MessageRepository, directory DirectoryProvider) *Service {
	return &Service{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		directory: directory,
	}
}

// FindOrCreateDirectInput represents input for resolving a direct conversation
type FindOrCreateDirectInput struct {
	SchoolID string
	UserA    string
	UserB    string
}

// FindOrCreateDirect returns the single direct conversation for an unordered
// user pair, creating it when absent. Self-conversations are rejected.
func (s *Service) FindOrCreateDirect(ctx context.Context, in FindOrCreateDirectInput) (*entity.Conversation, error) {
	if err := entity.ValidateDirectPair(in.UserA, in.UserB); err != nil {
		return nil, err
	}

	for _, id := range []string{in.UserA, in.UserB} {
		user, err := s.directory.GetUser(ctx, in.SchoolID, id)
		if err != nil {
			return nil, fmt.Errorf("resolving participant: %w", err)
		}
		if user == nil {
			return nil, entity.ErrUserNotFound
		}
	}

	pairKey := entity.PairKey(in.UserA, in.UserB)
	existing, err := s.convRepo.GetByPairKey(ctx, in.SchoolID, pairKey)
	if err != nil {
		return nil, fmt.Errorf("looking up direct conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	participants := []string{in.UserA, in.UserB}
	sort.Strings(participants)

	conv := s.newConversation(in.SchoolID, entity.ConversationTypeDirect, participants, "")
	conv.PairKey = pairKey

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating direct conversation: %w", err)
	}

	return conv, nil
}

// CreateGroupInput represents input for creating a group conversation
type CreateGroupInput struct {
	SchoolID       string
	ParticipantIDs []string
	GroupName      string
}

// CreateGroup always creates a fresh group conversation; groups are never
// deduplicated.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (*entity.Conversation, error) {
	if err := entity.ValidateGroupParticipants(in.ParticipantIDs); err != nil {
		return nil, err
	}

	conv := s.newConversation(in.SchoolID, entity.ConversationTypeGroup, in.ParticipantIDs, in.GroupName)
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating group conversation: %w", err)
	}

	return conv, nil
}

// ListConversationsInput represents input for listing conversations
type ListConversationsInput struct {
	SchoolID string
	UserID   string
}

// ListConversations returns all conversations the user participates in, with
// message logs attached.
func (s *Service) ListConversations(ctx context.Context, in ListConversationsInput) ([]entity.Conversation, error) {
	conversations, err := s.convRepo.ListByParticipant(ctx, in.SchoolID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return conversations, nil
}

// SendInput represents input for sending a message
type SendInput struct {
	SchoolID       string
	ConversationID string
	SenderID       string
	Content        string
	ReplyTo        string
	AttachmentURL  string
}

// Send appends a message to a conversation and bumps the unread counter of
// every other participant. ReplyTo is stored as given even when it does not
// resolve; rendering treats a dangling reference as "original unavailable".
func (s *Service) Send(ctx context.Context, in SendInput) (*entity.Message, error) {
	if err := entity.ValidateContent(in.Content); err != nil {
		return nil, err
	}

	conv, err := s.convRepo.GetByID(ctx, in.SchoolID, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil, entity.ErrConversationNotFound
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, entity.ErrNotParticipant
	}

	msg := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Status:         entity.MessageStatusSent,
		ReplyTo:        in.ReplyTo,
		AttachmentURL:  in.AttachmentURL,
		Timestamp:      time.Now(),
	}

	if err := s.msgRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	return msg, nil
}

// MarkReadInput represents input for marking a conversation read
type MarkReadInput struct {
	SchoolID       string
	ConversationID string
	UserID         string
}

// MarkRead marks all messages not authored by the user as read and resets the
// user's unread counter. Re-clearing an already-zero counter is harmless.
func (s *Service) MarkRead(ctx context.Context, in MarkReadInput) error {
	conv, err := s.convRepo.GetByID(ctx, in.SchoolID, in.ConversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return entity.ErrConversationNotFound
	}
	if !conv.HasParticipant(in.UserID) {
		return entity.ErrNotParticipant
	}

	if err := s.msgRepo.MarkRead(ctx, conv.ID, in.UserID); err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}
	if err := s.convRepo.ClearUnread(ctx, conv.ID, in.UserID); err != nil {
		return fmt.Errorf("clearing unread counter: %w", err)
	}

	return nil
}

// DeleteInput represents input for deleting a message
type DeleteInput struct {
	SchoolID       string
	ConversationID string
	MessageID      string
	RequesterID    string
}

// Delete tombstones a message. It returns false without error when the
// message is missing or the requester is neither the sender nor a moderator,
// so callers can surface a recoverable failure.
func (s *Service) Delete(ctx context.Context, in DeleteInput) (bool, error) {
	msg, err := s.msgRepo.GetByID(ctx, in.ConversationID, in.MessageID)
	if err != nil {
		return false, fmt.Errorf("loading message: %w", err)
	}
	if msg == nil {
		return false, nil
	}

	if msg.SenderID != in.RequesterID {
		requester, err := s.directory.GetUser(ctx, in.SchoolID, in.RequesterID)
		if err != nil {
			return false, fmt.Errorf("resolving requester: %w", err)
		}
		if requester == nil || !entity.CapabilitiesFor(requester.Role).CanModerateMessages {
			return false, nil
		}
	}

	if err := s.msgRepo.Tombstone(ctx, in.ConversationID, in.MessageID); err != nil {
		return false, fmt.Errorf("tombstoning message: %w", err)
	}

	return true, nil
}

// SearchInput represents input for searching conversations
type SearchInput struct {
	SchoolID string
	UserID   string
	Filter   entity.Filter
}

// Search evaluates the filter over the user's conversations. An all-empty
// filter is the explicit "no search performed" state and yields no results.
func (s *Service) Search(ctx context.Context, in SearchInput) ([]entity.Conversation, error) {
	if in.Filter.IsEmpty() {
		return []entity.Conversation{}, nil
	}

	conversations, err := s.convRepo.ListByParticipant(ctx, in.SchoolID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	matched := []entity.Conversation{}
	for i := range conversations {
		if in.Filter.Matches(&conversations[i], in.UserID) {
			matched = append(matched, conversations[i])
		}
	}

	return matched, nil
}

// newConversation builds a conversation shell with an empty unread map
func (s *Service) newConversation(schoolID string, typ entity.ConversationType, participants []string, groupName string) *entity.Conversation {
	now := time.Now()
	return &entity.Conversation{
		ID:           uuid.New().String(),
		SchoolID:     schoolID,
		Type:         typ,
		IsGroup:      typ != entity.ConversationTypeDirect,
		GroupName:    groupName,
		Participants: participants,
		Unread:       map[string]int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
