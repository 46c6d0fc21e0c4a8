package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/edudesk/internal/domain/messaging/entity"
	"github.com/vadim/edudesk/internal/domain/messaging/policy"
	"github.com/vadim/edudesk/internal/httpx/response"
	"github.com/vadim/edudesk/internal/storage"
)

// MessagingPolicy defines the interface for messaging operations
type MessagingPolicy interface {
	ListConversations(ctx context.Context, in policy.ListConversationsInput) ([]entity.Conversation, error)
	CreateConversation(ctx context.Context, in policy.CreateConversationInput) (*entity.Conversation, error)
	SendMessage(ctx context.Context, in policy.SendMessageInput) (*entity.Message, error)
	OpenConversation(ctx context.Context, in policy.OpenConversationInput) error
	DeleteMessage(ctx context.Context, in policy.DeleteMessageInput) (bool, error)
	SendAnnouncement(ctx context.Context, in policy.SendAnnouncementInput) (bool, error)
	SendClassMessage(ctx context.Context, in policy.SendClassMessageInput) (bool, error)
	Search(ctx context.Context, in policy.SearchInput) ([]entity.Conversation, error)
	Permissions(ctx context.Context, in policy.PermissionsInput) (entity.Capabilities, error)
}

// AttachmentUploader stores message attachments
type AttachmentUploader interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
}

// MessagingHandler handles HTTP requests for the messaging core. It also
// owns the per-session current-conversation pointer; opening a conversation
// records it and clears the opener's unread counter.
type MessagingHandler struct {
	policy  MessagingPolicy
	uploads AttachmentUploader // nil when attachment storage is not configured
	current sync.Map           // "schoolID/userID" -> conversation id
}

// NewMessagingHandler creates a new messaging handler
func NewMessagingHandler(p MessagingPolicy, uploads AttachmentUploader) *MessagingHandler {
	return &MessagingHandler{policy: p, uploads: uploads}
}

// RegisterRoutes registers messaging routes
func (h *MessagingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/messaging", func(r chi.Router) {
		r.Get("/conversations", h.ListConversations())
		r.Post("/conversations", h.CreateConversation())
		r.Post("/conversations/{conversationID}/messages", h.SendMessage())
		r.Delete("/conversations/{conversationID}/messages/{messageID}", h.DeleteMessage())
		r.Post("/conversations/{conversationID}/open", h.OpenConversation())
		r.Post("/announcements", h.SendAnnouncement())
		r.Post("/classes/{classID}/messages", h.SendClassMessage())
		r.Post("/search", h.Search())
		r.Get("/permissions", h.Permissions())
		r.Post("/uploads", h.UploadAttachment())
	})
}

// identity is the requester identity carried on every request. Session
// authentication lives outside this subsystem; the caller supplies the ids.
type identity struct {
	SchoolID string
	UserID   string
}

func requesterIdentity(r *http.Request) (identity, bool) {
	id := identity{
		SchoolID: r.URL.Query().Get("school_id"),
		UserID:   r.URL.Query().Get("user_id"),
	}
	return id, id.SchoolID != "" && id.UserID != ""
}

func (id identity) key() string {
	return id.SchoolID + "/" + id.UserID
}

// ListConversationsResponse represents the response for listing conversations
type ListConversationsResponse struct {
	Conversations []entity.Conversation `json:"conversations"`
}

// ListConversations handles GET /messaging/conversations
func (h *MessagingHandler) ListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		conversations, err := h.policy.ListConversations(r.Context(), policy.ListConversationsInput{
			SchoolID: id.SchoolID,
			UserID:   id.UserID,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.OK(w, ListConversationsResponse{Conversations: conversations})
	}
}

// CreateConversationRequest represents the request for creating a conversation
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	IsGroup        bool     `json:"is_group"`
	GroupName      string   `json:"group_name"`
}

// CreateConversation handles POST /messaging/conversations
func (h *MessagingHandler) CreateConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		var req CreateConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		conv, err := h.policy.CreateConversation(r.Context(), policy.CreateConversationInput{
			SchoolID:       id.SchoolID,
			CreatorID:      id.UserID,
			ParticipantIDs: req.ParticipantIDs,
			IsGroup:        req.IsGroup,
			GroupName:      req.GroupName,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.Created(w, conv)
	}
}

// SendMessageRequest represents the request for sending a message
type SendMessageRequest struct {
	Content       string `json:"content"`
	ReplyTo       string `json:"reply_to,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// SendMessage handles POST /messaging/conversations/{conversationID}/messages
func (h *MessagingHandler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		msg, err := h.policy.SendMessage(r.Context(), policy.SendMessageInput{
			SchoolID:       id.SchoolID,
			ConversationID: chi.URLParam(r, "conversationID"),
			SenderID:       id.UserID,
			Content:        req.Content,
			ReplyTo:        req.ReplyTo,
			AttachmentURL:  req.AttachmentURL,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.Created(w, msg)
	}
}

// DeleteMessageResponse represents the response for deleting a message
type DeleteMessageResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteMessage handles DELETE /messaging/conversations/{conversationID}/messages/{messageID}.
// A denied or missing delete answers 200 with deleted=false so the UI can
// show a recoverable error.
func (h *MessagingHandler) DeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		deleted, err := h.policy.DeleteMessage(r.Context(), policy.DeleteMessageInput{
			SchoolID:       id.SchoolID,
			ConversationID: chi.URLParam(r, "conversationID"),
			MessageID:      chi.URLParam(r, "messageID"),
			RequesterID:    id.UserID,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.OK(w, DeleteMessageResponse{Deleted: deleted})
	}
}

// OpenConversationResponse represents the response for opening a conversation
type OpenConversationResponse struct {
	CurrentConversationID string `json:"current_conversation_id"`
}

// OpenConversation handles POST /messaging/conversations/{conversationID}/open
func (h *MessagingHandler) OpenConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		conversationID := chi.URLParam(r, "conversationID")
		if err := h.policy.OpenConversation(r.Context(), policy.OpenConversationInput{
			SchoolID:       id.SchoolID,
			ConversationID: conversationID,
			UserID:         id.UserID,
		}); err != nil {
			handleMessagingError(w, err)
			return
		}

		h.current.Store(id.key(), conversationID)
		response.OK(w, OpenConversationResponse{CurrentConversationID: conversationID})
	}
}

// SendAnnouncementRequest represents the request for a role-wide announcement
type SendAnnouncementRequest struct {
	Content     string   `json:"content"`
	TargetRoles []string `json:"target_roles"`
}

// BroadcastResponse represents the response for broadcast sends
type BroadcastResponse struct {
	Sent bool `json:"sent"`
}

// SendAnnouncement handles POST /messaging/announcements
func (h *MessagingHandler) SendAnnouncement() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		var req SendAnnouncementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		roles := make([]entity.Role, 0, len(req.TargetRoles))
		for _, role := range req.TargetRoles {
			roles = append(roles, entity.Role(role))
		}

		sent, err := h.policy.SendAnnouncement(r.Context(), policy.SendAnnouncementInput{
			SchoolID:    id.SchoolID,
			SenderID:    id.UserID,
			Content:     req.Content,
			TargetRoles: roles,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.OK(w, BroadcastResponse{Sent: sent})
	}
}

// SendClassMessageRequest represents the request for a class broadcast
type SendClassMessageRequest struct {
	Content string `json:"content"`
}

// SendClassMessage handles POST /messaging/classes/{classID}/messages
func (h *MessagingHandler) SendClassMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		var req SendClassMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		sent, err := h.policy.SendClassMessage(r.Context(), policy.SendClassMessageInput{
			SchoolID: id.SchoolID,
			SenderID: id.UserID,
			ClassID:  chi.URLParam(r, "classID"),
			Content:  req.Content,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.OK(w, BroadcastResponse{Sent: sent})
	}
}

// Search handles POST /messaging/search. The body is the filter itself; an
// all-empty filter answers an empty list, the explicit no-search state.
func (h *MessagingHandler) Search() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		var filter entity.Filter
		if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		conversations, err := h.policy.Search(r.Context(), policy.SearchInput{
			SchoolID: id.SchoolID,
			UserID:   id.UserID,
			Filter:   filter,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.OK(w, ListConversationsResponse{Conversations: conversations})
	}
}

// Permissions handles GET /messaging/permissions
func (h *MessagingHandler) Permissions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		caps, err := h.policy.Permissions(r.Context(), policy.PermissionsInput{
			SchoolID: id.SchoolID,
			UserID:   id.UserID,
		})
		if err != nil {
			handleMessagingError(w, err)
			return
		}

		response.OK(w, caps)
	}
}

// UploadAttachment handles POST /messaging/uploads (multipart form, field "file")
func (h *MessagingHandler) UploadAttachment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterIdentity(r)
		if !ok {
			response.BadRequest(w, "school_id and user_id are required")
			return
		}

		if h.uploads == nil {
			response.Error(w, http.StatusServiceUnavailable, "attachment storage is not configured")
			return
		}

		if err := r.ParseMultipartForm(storage.MaxAttachmentSize); err != nil {
			response.BadRequest(w, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			response.BadRequest(w, "file field is required")
			return
		}
		defer file.Close()

		out, err := h.uploads.Upload(r.Context(), storage.UploadInput{
			SchoolID:    id.SchoolID,
			Reader:      file,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Filename:    header.Filename,
		})
		if err != nil {
			response.InternalError(w, "failed to store attachment")
			return
		}

		response.Created(w, out)
	}
}

// handleMessagingError maps domain errors to HTTP status codes
func handleMessagingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrEmptyMessage),
		errors.Is(err, entity.ErrMessageTooLong),
		errors.Is(err, entity.ErrSelfConversation),
		errors.Is(err, entity.ErrInvalidParticipants):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrPermissionDenied),
		errors.Is(err, entity.ErrNotParticipant):
		response.Forbidden(w, err.Error())
	case errors.Is(err, entity.ErrConversationNotFound),
		errors.Is(err, entity.ErrMessageNotFound),
		errors.Is(err, entity.ErrUserNotFound),
		errors.Is(err, entity.ErrClassNotFound):
		response.NotFound(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
