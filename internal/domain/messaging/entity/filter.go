package entity

import (
	"strings"
	"time"
)

// Filter is the query object for conversation search. All fields are
// optional; an all-empty filter is the explicit "no search performed" state
// and matches nothing.
type Filter struct {
	ParticipantID string           `json:"participant_id,omitempty"`
	DateFrom      *time.Time       `json:"date_from,omitempty"`
	DateTo        *time.Time       `json:"date_to,omitempty"`
	Keyword       string           `json:"keyword,omitempty"`
	Type          ConversationType `json:"type,omitempty"`
	UnreadOnly    bool             `json:"unread_only,omitempty"`
}

// IsEmpty reports whether no filter field is set.
func (f Filter) IsEmpty() bool {
	return f.ParticipantID == "" &&
		f.DateFrom == nil &&
		f.DateTo == nil &&
		f.Keyword == "" &&
		f.Type == "" &&
		!f.UnreadOnly
}

// Matches reports whether the conversation satisfies every non-empty filter
// field for the given viewer. The date range is inclusive and applies to any
// single message; the keyword is a case-insensitive substring match over
// message content.
func (f Filter) Matches(conv *Conversation, viewerID string) bool {
	if f.IsEmpty() {
		return false
	}
	if f.ParticipantID != "" && !conv.HasParticipant(f.ParticipantID) {
		return false
	}
	if f.Type != "" && conv.Type != f.Type {
		return false
	}
	if f.UnreadOnly && conv.UnreadFor(viewerID) == 0 {
		return false
	}
	if f.DateFrom != nil || f.DateTo != nil {
		if !f.anyMessageInRange(conv.Messages) {
			return false
		}
	}
	if f.Keyword != "" && !anyContentContains(conv.Messages, f.Keyword) {
		return false
	}
	return true
}

func (f Filter) anyMessageInRange(messages []Message) bool {
	for i := range messages {
		ts := messages[i].Timestamp
		if f.DateFrom != nil && ts.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && ts.After(*f.DateTo) {
			continue
		}
		return true
	}
	return false
}

func anyContentContains(messages []Message, keyword string) bool {
	needle := strings.ToLower(keyword)
	for i := range messages {
		if strings.Contains(strings.ToLower(messages[i].Content), needle) {
			return true
		}
	}
	return false
}
