package service

import (
	"context"
	"fmt"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
)

// SendAnnouncementInput represents input for a role-wide announcement
type SendAnnouncementInput struct {
	SchoolID    string
	SenderID    string
	Content     string
	TargetRoles []entity.Role
}

// SendAnnouncement resolves the target roles to a recipient set and sends one
// message into a single fresh announcement conversation holding the sender
// plus every recipient. Keeping one shared conversation per broadcast keeps
// "who has seen it" queryable in one place; the cost is an unread map that
// grows with the audience.
//
// It returns false when the roles resolve to zero recipients; no empty
// broadcast conversation is created.
func (s *Service) SendAnnouncement(ctx context.Context, in SendAnnouncementInput) (bool, error) {
	if err := entity.ValidateContent(in.Content); err != nil {
		return false, err
	}
	if len(in.TargetRoles) == 0 {
		return false, nil
	}

	sender, err := s.directory.GetUser(ctx, in.SchoolID, in.SenderID)
	if err != nil {
		return false, fmt.Errorf("resolving sender: %w", err)
	}
	if sender == nil {
		return false, entity.ErrUserNotFound
	}
	if !entity.CanAnnounceTo(sender.Role, in.TargetRoles) {
		return false, entity.ErrPermissionDenied
	}

	var recipients []string
	for _, role := range in.TargetRoles {
		users, err := s.directory.ListUsersByRole(ctx, in.SchoolID, role)
		if err != nil {
			return false, fmt.Errorf("resolving role %q: %w", role, err)
		}
		for _, u := range users {
			recipients = append(recipients, u.ID)
		}
	}
	recipients = dedupeExcluding(recipients, in.SenderID)
	if len(recipients) == 0 {
		return false, nil
	}

	label := fmt.Sprintf("Announcement from %s %s", sender.FirstName, sender.LastName)
	conv := s.newConversation(in.SchoolID, entity.ConversationTypeAnnouncement,
		append([]string{in.SenderID}, recipients...), label)
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return false, fmt.Errorf("creating announcement conversation: %w", err)
	}

	if _, err := s.Send(ctx, SendInput{
		SchoolID:       in.SchoolID,
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Content:        in.Content,
	}); err != nil {
		return false, err
	}

	return true, nil
}

// SendClassMessageInput represents input for a class broadcast
type SendClassMessageInput struct {
	SchoolID string
	SenderID string
	ClassID  string
	Content  string
}

// SendClassMessage resolves the class roster and sends one message into a
// fresh class conversation holding the sender plus the roster. Each call
// creates a new conversation; any dedup policy belongs here, never in the
// message engine.
func (s *Service) SendClassMessage(ctx context.Context, in SendClassMessageInput) (bool, error) {
	if err := entity.ValidateContent(in.Content); err != nil {
		return false, err
	}

	sender, err := s.directory.GetUser(ctx, in.SchoolID, in.SenderID)
	if err != nil {
		return false, fmt.Errorf("resolving sender: %w", err)
	}
	if sender == nil {
		return false, entity.ErrUserNotFound
	}
	if !entity.CapabilitiesFor(sender.Role).CanSendToClass {
		return false, entity.ErrPermissionDenied
	}

	class, err := s.directory.GetClass(ctx, in.SchoolID, in.ClassID)
	if err != nil {
		return false, fmt.Errorf("resolving class: %w", err)
	}
	if class == nil {
		return false, entity.ErrClassNotFound
	}

	roster, err := s.directory.ListClassStudents(ctx, in.SchoolID, in.ClassID)
	if err != nil {
		return false, fmt.Errorf("resolving class roster: %w", err)
	}
	recipients := make([]string, 0, len(roster))
	for _, u := range roster {
		recipients = append(recipients, u.ID)
	}
	recipients = dedupeExcluding(recipients, in.SenderID)
	if len(recipients) == 0 {
		return false, nil
	}

	conv := s.newConversation(in.SchoolID, entity.ConversationTypeClass,
		append([]string{in.SenderID}, recipients...), class.Name)
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return false, fmt.Errorf("creating class conversation: %w", err)
	}

	if _, err := s.Send(ctx, SendInput{
		SchoolID:       in.SchoolID,
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Content:        in.Content,
	}); err != nil {
		return false, err
	}

	return true, nil
}

// dedupeExcluding removes duplicates and the excluded id, preserving order
func dedupeExcluding(ids []string, exclude string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
