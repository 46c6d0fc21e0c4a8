package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpcontroller "github.com/vadim/edudesk/internal/controller/http"
	"github.com/vadim/edudesk/internal/domain/messaging/entity"
	"github.com/vadim/edudesk/internal/domain/messaging/policy"
)

// fakePolicy satisfies the handler's policy interface with canned results
type fakePolicy struct {
	sendErr       error
	deleteResult  bool
	searchResults []entity.Conversation
	caps          entity.Capabilities
	openErr       error
}

func (f *fakePolicy) ListConversations(ctx context.Context, in policy.ListConversationsInput) ([]entity.Conversation, error) {
	return []entity.Conversation{}, nil
}

func (f *fakePolicy) CreateConversation(ctx context.Context, in policy.CreateConversationInput) (*entity.Conversation, error) {
	return &entity.Conversation{ID: "c1", Participants: in.ParticipantIDs}, nil
}

func (f *fakePolicy) SendMessage(ctx context.Context, in policy.SendMessageInput) (*entity.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &entity.Message{ID: "m1", Content: in.Content}, nil
}

func (f *fakePolicy) OpenConversation(ctx context.Context, in policy.OpenConversationInput) error {
	return f.openErr
}

func (f *fakePolicy) DeleteMessage(ctx context.Context, in policy.DeleteMessageInput) (bool, error) {
	return f.deleteResult, nil
}

func (f *fakePolicy) SendAnnouncement(ctx context.Context, in policy.SendAnnouncementInput) (bool, error) {
	return true, nil
}

func (f *fakePolicy) SendClassMessage(ctx context.Context, in policy.SendClassMessageInput) (bool, error) {
	return true, nil
}

func (f *fakePolicy) Search(ctx context.Context, in policy.SearchInput) ([]entity.Conversation, error) {
	return f.searchResults, nil
}

func (f *fakePolicy) Permissions(ctx context.Context, in policy.PermissionsInput) (entity.Capabilities, error) {
	return f.caps, nil
}

func newTestRouter(p *fakePolicy) http.Handler {
	r := chi.NewRouter()
	handler := httpcontroller.NewMessagingHandler(p, nil)
	handler.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIdentityIsRequired(t *testing.T) {
	router := newTestRouter(&fakePolicy{})

	rec := doRequest(t, router, http.MethodGet, "/messaging/conversations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/messaging/conversations?school_id=s1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/messaging/conversations?school_id=s1&user_id=u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessageErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty message", entity.ErrEmptyMessage, http.StatusBadRequest},
		{"too long", entity.ErrMessageTooLong, http.StatusBadRequest},
		{"not a participant", entity.ErrNotParticipant, http.StatusForbidden},
		{"permission denied", entity.ErrPermissionDenied, http.StatusForbidden},
		{"conversation missing", entity.ErrConversationNotFound, http.StatusNotFound},
		{"unexpected failure", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakePolicy{sendErr: tt.err})
			rec := doRequest(t, router, http.MethodPost,
				"/messaging/conversations/c1/messages?school_id=s1&user_id=u1",
				`{"content":"hello"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSendMessageSuccess(t *testing.T) {
	router := newTestRouter(&fakePolicy{})
	rec := doRequest(t, router, http.MethodPost,
		"/messaging/conversations/c1/messages?school_id=s1&user_id=u1",
		`{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg entity.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "hello", msg.Content)
}

func TestDeleteMessageResponds200EitherWay(t *testing.T) {
	for _, deleted := range []bool{true, false} {
		router := newTestRouter(&fakePolicy{deleteResult: deleted})
		rec := doRequest(t, router, http.MethodDelete,
			"/messaging/conversations/c1/messages/m1?school_id=s1&user_id=u1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, deleted, body["deleted"])
	}
}

func TestOpenConversation(t *testing.T) {
	router := newTestRouter(&fakePolicy{})
	rec := doRequest(t, router, http.MethodPost,
		"/messaging/conversations/c1/open?school_id=s1&user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c1", body["current_conversation_id"])
}

func TestOpenUnknownConversation(t *testing.T) {
	router := newTestRouter(&fakePolicy{openErr: entity.ErrConversationNotFound})
	rec := doRequest(t, router, http.MethodPost,
		"/messaging/conversations/nope/open?school_id=s1&user_id=u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEmptyFilter(t *testing.T) {
	router := newTestRouter(&fakePolicy{searchResults: []entity.Conversation{}})
	rec := doRequest(t, router, http.MethodPost,
		"/messaging/search?school_id=s1&user_id=u1", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Conversations []entity.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Conversations)
}

func TestPermissions(t *testing.T) {
	router := newTestRouter(&fakePolicy{caps: entity.Capabilities{CanSendToClass: true}})
	rec := doRequest(t, router, http.MethodGet,
		"/messaging/permissions?school_id=s1&user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var caps entity.Capabilities
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &caps))
	assert.True(t, caps.CanSendToClass)
	assert.False(t, caps.CanSendAnnouncement)
}

func TestUploadWithoutStorage(t *testing.T) {
	router := newTestRouter(&fakePolicy{})
	rec := doRequest(t, router, http.MethodPost,
		"/messaging/uploads?school_id=s1&user_id=u1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvalidBodyIsBadRequest(t *testing.T) {
	router := newTestRouter(&fakePolicy{})
	rec := doRequest(t, router, http.MethodPost,
		"/messaging/conversations?school_id=s1&user_id=u1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
