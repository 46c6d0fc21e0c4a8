package entity

import (
	"sort"
	"strings"
	"time"
)

// ConversationType classifies how a conversation was created and who it targets
type ConversationType string

const (
	ConversationTypeDirect       ConversationType = "direct"
	ConversationTypeGroup        ConversationType = "group"
	ConversationTypeClass        ConversationType = "class"
	ConversationTypeAnnouncement ConversationType = "announcement"
)

// Conversation represents a message thread between two or more users.
// For direct conversations exactly one row may exist per unordered participant
// pair within a school; group/class/announcement conversations are never
// deduplicated.
type Conversation struct {
	ID                  string           `json:"id"`
	SchoolID            string           `json:"school_id"`
	Type                ConversationType `json:"type"`
	IsGroup             bool             `json:"is_group"`
	GroupName           string           `json:"group_name,omitempty"`
	PairKey             string           `json:"-"`
	Participants        []string         `json:"participants"`
	Unread              map[string]int   `json:"unread"`
	LastMessageText     string           `json:"last_message_text,omitempty"`
	LastMessageSenderID string           `json:"last_message_sender_id,omitempty"`
	LastMessageAt       *time.Time       `json:"last_message_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	Messages            []Message        `json:"messages,omitempty"`
}

// PairKey derives the dedup key for a direct conversation from an unordered
// user pair. The store holds a uniqueness guarantee on this key, so concurrent
// find-or-create calls from both sides converge on one conversation.
func PairKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// HasParticipant reports whether userID is part of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter for a participant, absent entries are 0.
func (c *Conversation) UnreadFor(userID string) int {
	if c.Unread == nil {
		return 0
	}
	return c.Unread[userID]
}

// ValidateDirectPair validates the participant pair for a direct conversation.
func ValidateDirectPair(userA, userB string) error {
	if userA == "" || userB == "" {
		return ErrInvalidParticipants
	}
	if userA == userB {
		return ErrSelfConversation
	}
	return nil
}

// ValidateGroupParticipants validates the participant set for a non-direct
// conversation.
func ValidateGroupParticipants(participantIDs []string) error {
	if len(participantIDs) < 2 {
		return ErrInvalidParticipants
	}
	seen := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" {
			return ErrInvalidParticipants
		}
		if _, dup := seen[id]; dup {
			return ErrInvalidParticipants
		}
		seen[id] = struct{}{}
	}
	return nil
}
