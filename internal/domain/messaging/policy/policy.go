package policy

import (
	"context"
	"fmt"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
	"github.com/vadim/edudesk/internal/domain/messaging/service"
)

// RequesterDirectory resolves the requesting user so capabilities can be
// derived from their role. Lookups return (nil, nil) when the user is missing.
type RequesterDirectory interface {
	GetUser(ctx context.Context, schoolID, userID string) (*service.DirectoryUser, error)
}

// MessagingService defines the interface for the messaging service
type MessagingService interface {
	FindOrCreateDirect(ctx context.Context, in service.FindOrCreateDirectInput) (*entity.Conversation, error)
	CreateGroup(ctx context.Context, in service.CreateGroupInput) (*entity.Conversation, error)
	ListConversations(ctx context.Context, in service.ListConversationsInput) ([]entity.Conversation, error)
	Send(ctx context.Context, in service.SendInput) (*entity.Message, error)
	MarkRead(ctx context.Context, in service.MarkReadInput) error
	Delete(ctx context.Context, in service.DeleteInput) (bool, error)
	Search(ctx context.Context, in service.SearchInput) ([]entity.Conversation, error)
	SendAnnouncement(ctx context.Context, in service.SendAnnouncementInput) (bool, error)
	SendClassMessage(ctx context.Context, in service.SendClassMessageInput) (bool, error)
}

// Policy fronts the messaging service for a requesting user. Capability
// checks run here and again inside the service, so a UI-level gate is never
// the sole enforcement point.
type Policy struct {
	svc       MessagingService
	directory RequesterDirectory
}

// New creates a new messaging policy
func New(svc MessagingService, directory RequesterDirectory) *Policy {
	return &Policy{
		svc:       svc,
		directory: directory,
	}
}

// ListConversationsInput represents input for listing conversations
type ListConversationsInput struct {
	SchoolID string
	UserID   string
}

// ListConversations returns the requester's conversations
func (p *Policy) ListConversations(ctx context.Context, in ListConversationsInput) ([]entity.Conversation, error) {
	return p.svc.ListConversations(ctx, service.ListConversationsInput{
		SchoolID: in.SchoolID,
		UserID:   in.UserID,
	})
}

// CreateConversationInput represents input for creating a conversation
type CreateConversationInput struct {
	SchoolID       string
	CreatorID      string
	ParticipantIDs []string
	IsGroup        bool
	GroupName      string
}

// CreateConversation creates a conversation on behalf of the requester. Two
// participants without an explicit group request resolve to the deduplicated
// direct conversation; everything else creates a fresh group.
func (p *Policy) CreateConversation(ctx context.Context, in CreateConversationInput) (*entity.Conversation, error) {
	participants := in.ParticipantIDs
	if !contains(participants, in.CreatorID) {
		participants = append([]string{in.CreatorID}, participants...)
	}

	if len(participants) == 2 && !in.IsGroup {
		return p.svc.FindOrCreateDirect(ctx, service.FindOrCreateDirectInput{
			SchoolID: in.SchoolID,
			UserA:    participants[0],
			UserB:    participants[1],
		})
	}

	return p.svc.CreateGroup(ctx, service.CreateGroupInput{
		SchoolID:       in.SchoolID,
		ParticipantIDs: participants,
		GroupName:      in.GroupName,
	})
}

// SendMessageInput represents input for sending a message
type SendMessageInput struct {
	SchoolID       string
	ConversationID string
	SenderID       string
	Content        string
	ReplyTo        string
	AttachmentURL  string
}

// SendMessage sends a message as the requester
func (p *Policy) SendMessage(ctx context.Context, in SendMessageInput) (*entity.Message, error) {
	return p.svc.Send(ctx, service.SendInput{
		SchoolID:       in.SchoolID,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		ReplyTo:        in.ReplyTo,
		AttachmentURL:  in.AttachmentURL,
	})
}

// OpenConversationInput represents input for opening a conversation
type OpenConversationInput struct {
	SchoolID       string
	ConversationID string
	UserID         string
}

// OpenConversation marks the conversation read for the requester. The caller
// owns the session's current-conversation pointer.
func (p *Policy) OpenConversation(ctx context.Context, in OpenConversationInput) error {
	return p.svc.MarkRead(ctx, service.MarkReadInput{
		SchoolID:       in.SchoolID,
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
	})
}

// DeleteMessageInput represents input for deleting a message
type DeleteMessageInput struct {
	SchoolID       string
	ConversationID string
	MessageID      string
	RequesterID    string
}

// DeleteMessage tombstones a message; false means the message is missing or
// the requester lacks the right to delete it.
func (p *Policy) DeleteMessage(ctx context.Context, in DeleteMessageInput) (bool, error) {
	return p.svc.Delete(ctx, service.DeleteInput{
		SchoolID:       in.SchoolID,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		RequesterID:    in.RequesterID,
	})
}

// SendAnnouncementInput represents input for a role-wide announcement
type SendAnnouncementInput struct {
	SchoolID    string
	SenderID    string
	Content     string
	TargetRoles []entity.Role
}

// SendAnnouncement broadcasts to the given roles after checking the
// requester's capability.
func (p *Policy) SendAnnouncement(ctx context.Context, in SendAnnouncementInput) (bool, error) {
	caps, err := p.capabilitiesOf(ctx, in.SchoolID, in.SenderID)
	if err != nil {
		return false, err
	}
	if !caps.CanSendAnnouncement {
		return false, entity.ErrPermissionDenied
	}

	return p.svc.SendAnnouncement(ctx, service.SendAnnouncementInput{
		SchoolID:    in.SchoolID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		TargetRoles: in.TargetRoles,
	})
}

// SendClassMessageInput represents input for a class broadcast
type SendClassMessageInput struct {
	SchoolID string
	SenderID string
	ClassID  string
	Content  string
}

// SendClassMessage broadcasts to a class roster after checking the
// requester's capability.
func (p *Policy) SendClassMessage(ctx context.Context, in SendClassMessageInput) (bool, error) {
	caps, err := p.capabilitiesOf(ctx, in.SchoolID, in.SenderID)
	if err != nil {
		return false, err
	}
	if !caps.CanSendToClass {
		return false, entity.ErrPermissionDenied
	}

	return p.svc.SendClassMessage(ctx, service.SendClassMessageInput{
		SchoolID: in.SchoolID,
		SenderID: in.SenderID,
		ClassID:  in.ClassID,
		Content:  in.Content,
	})
}

// SearchInput represents input for searching conversations
type SearchInput struct {
	SchoolID string
	UserID   string
	Filter   entity.Filter
}

// Search evaluates the filter over the requester's conversations
func (p *Policy) Search(ctx context.Context, in SearchInput) ([]entity.Conversation, error) {
	return p.svc.Search(ctx, service.SearchInput{
		SchoolID: in.SchoolID,
		UserID:   in.UserID,
		Filter:   in.Filter,
	})
}

// PermissionsInput represents input for deriving a capability set
type PermissionsInput struct {
	SchoolID string
	UserID   string
}

// Permissions derives the requester's capability set. It is re-evaluated on
// every call and never cached; an unknown user gets no capabilities.
func (p *Policy) Permissions(ctx context.Context, in PermissionsInput) (entity.Capabilities, error) {
	return p.capabilitiesOf(ctx, in.SchoolID, in.UserID)
}

// capabilitiesOf resolves a user's role and maps it to capabilities,
// failing closed when the user does not resolve.
func (p *Policy) capabilitiesOf(ctx context.Context, schoolID, userID string) (entity.Capabilities, error) {
	user, err := p.directory.GetUser(ctx, schoolID, userID)
	if err != nil {
		return entity.Capabilities{}, fmt.Errorf("resolving requester: %w", err)
	}
	if user == nil {
		return entity.Capabilities{}, nil
	}
	return entity.CapabilitiesFor(user.Role), nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
