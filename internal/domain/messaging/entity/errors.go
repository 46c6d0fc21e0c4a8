package entity

import "errors"

// Domain errors for the messaging core
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrEmptyMessage         = errors.New("message content cannot be empty")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrInvalidParticipants  = errors.New("invalid participant set")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
	ErrPermissionDenied     = errors.New("missing capability for this action")
	ErrNoRecipients         = errors.New("broadcast resolved zero recipients")
	ErrUserNotFound         = errors.New("user not found")
	ErrClassNotFound        = errors.New("class not found")
)
