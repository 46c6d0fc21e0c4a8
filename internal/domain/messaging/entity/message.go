package entity

import (
	"strings"
	"time"
)

// MessageStatus represents the delivery status of a message. It only ever
// advances sent -> delivered -> read.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// TombstoneContent replaces the content of a deleted message. The row itself
// is never removed so reply references stay resolvable.
const TombstoneContent = "This message was deleted"

// MaxMessageLength is the maximum length of a message body
const MaxMessageLength = 4000

// Message represents a single message inside a conversation
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	ReplyTo        string        `json:"reply_to,omitempty"`
	IsSystem       bool          `json:"is_system"`
	AttachmentURL  string        `json:"attachment_url,omitempty"`
	ReadBy         []string      `json:"read_by,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// ValidateContent validates a message body at send time
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// IsReadBy reports whether userID has read the message.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ResolveReply resolves a reply back-reference against a loaded message log.
// A dangling reference returns nil: the reply is rendered as "original message
// unavailable" rather than rejected.
func ResolveReply(messages []Message, replyTo string) *Message {
	if replyTo == "" {
		return nil
	}
	for i := range messages {
		if messages[i].ID == replyTo {
			return &messages[i]
		}
	}
	return nil
}
