package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/edudesk/internal/domain/messaging/dao"
	"github.com/vadim/edudesk/internal/domain/messaging/entity"
	"github.com/vadim/edudesk/internal/domain/messaging/service"
)

const testSchool = "school-1"

// fakeDirectory is an in-memory DirectoryProvider for service tests
type fakeDirectory struct {
	users   map[string]service.DirectoryUser
	classes map[string]service.DirectoryClass
	rosters map[string][]service.DirectoryUser
}

func (f *fakeDirectory) GetUser(ctx context.Context, schoolID, userID string) (*service.DirectoryUser, error) {
	if u, ok := f.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeDirectory) ListUsersByRole(ctx context.Context, schoolID string, role entity.Role) ([]service.DirectoryUser, error) {
	var out []service.DirectoryUser
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetClass(ctx context.Context, schoolID, classID string) (*service.DirectoryClass, error) {
	if c, ok := f.classes[classID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeDirectory) ListClassStudents(ctx context.Context, schoolID, classID string) ([]service.DirectoryUser, error) {
	return f.rosters[classID], nil
}

func newTestDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]service.DirectoryUser{
			"admin-1":   {ID: "admin-1", FirstName: "Ada", LastName: "Admin", Role: entity.RoleAdmin},
			"teacher-1": {ID: "teacher-1", FirstName: "Tara", LastName: "Teach", Role: entity.RoleTeacher},
			"teacher-2": {ID: "teacher-2", FirstName: "Tom", LastName: "Teach", Role: entity.RoleTeacher},
			"student-1": {ID: "student-1", FirstName: "Sam", LastName: "Stu", Role: entity.RoleStudent},
			"student-2": {ID: "student-2", FirstName: "Sue", LastName: "Stu", Role: entity.RoleStudent},
			"parent-1":  {ID: "parent-1", FirstName: "Pat", LastName: "Par", Role: entity.RoleParent},
		},
		classes: map[string]service.DirectoryClass{},
		rosters: map[string][]service.DirectoryUser{},
	}
}

func newTestService(t *testing.T) (*service.Service, *fakeDirectory) {
	t.Helper()
	convRepo, msgRepo := dao.NewMemory()
	directory := newTestDirectory()
	return service.New(convRepo, msgRepo, directory), directory
}

func mustDirect(t *testing.T, svc *service.Service, a, b string) *entity.Conversation {
	t.Helper()
	conv, err := svc.FindOrCreateDirect(context.Background(), service.FindOrCreateDirectInput{
		SchoolID: testSchool, UserA: a, UserB: b,
	})
	require.NoError(t, err)
	require.NotNil(t, conv)
	return conv
}

func mustSend(t *testing.T, svc *service.Service, convID, sender, content string) *entity.Message {
	t.Helper()
	msg, err := svc.Send(context.Background(), service.SendInput{
		SchoolID: testSchool, ConversationID: convID, SenderID: sender, Content: content,
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func conversationOf(t *testing.T, svc *service.Service, userID, convID string) *entity.Conversation {
	t.Helper()
	convs, err := svc.ListConversations(context.Background(), service.ListConversationsInput{
		SchoolID: testSchool, UserID: userID,
	})
	require.NoError(t, err)
	for i := range convs {
		if convs[i].ID == convID {
			return &convs[i]
		}
	}
	t.Fatalf("conversation %s not found for %s", convID, userID)
	return nil
}

func TestFindOrCreateDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("same pair resolves to one conversation regardless of order", func(t *testing.T) {
		svc, _ := newTestService(t)

		first := mustDirect(t, svc, "teacher-1", "parent-1")
		second := mustDirect(t, svc, "parent-1", "teacher-1")

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, entity.ConversationTypeDirect, first.Type)
		assert.False(t, first.IsGroup)
		assert.ElementsMatch(t, []string{"teacher-1", "parent-1"}, first.Participants)
	})

	t.Run("self conversation is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.FindOrCreateDirect(ctx, service.FindOrCreateDirectInput{
			SchoolID: testSchool, UserA: "teacher-1", UserB: "teacher-1",
		})
		assert.ErrorIs(t, err, entity.ErrSelfConversation)
	})

	t.Run("unknown participant is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.FindOrCreateDirect(ctx, service.FindOrCreateDirectInput{
			SchoolID: testSchool, UserA: "teacher-1", UserB: "ghost",
		})
		assert.ErrorIs(t, err, entity.ErrUserNotFound)
	})

	t.Run("distinct pairs get distinct conversations", func(t *testing.T) {
		svc, _ := newTestService(t)
		a := mustDirect(t, svc, "teacher-1", "parent-1")
		b := mustDirect(t, svc, "teacher-1", "student-1")
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("groups are never deduplicated", func(t *testing.T) {
		svc, _ := newTestService(t)
		in := service.CreateGroupInput{
			SchoolID:       testSchool,
			ParticipantIDs: []string{"teacher-1", "student-1", "student-2"},
			GroupName:      "Field trip",
		}
		a, err := svc.CreateGroup(ctx, in)
		require.NoError(t, err)
		b, err := svc.CreateGroup(ctx, in)
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
		assert.True(t, a.IsGroup)
		assert.Equal(t, "Field trip", a.GroupName)
	})

	t.Run("invalid participant sets are rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateGroup(ctx, service.CreateGroupInput{
			SchoolID: testSchool, ParticipantIDs: []string{"teacher-1"},
		})
		assert.ErrorIs(t, err, entity.ErrInvalidParticipants)
	})
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("each send increments other participants' unread counters", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")

		mustSend(t, svc, conv.ID, "teacher-1", "first")
		mustSend(t, svc, conv.ID, "teacher-1", "second")
		mustSend(t, svc, conv.ID, "teacher-1", "third")

		got := conversationOf(t, svc, "parent-1", conv.ID)
		assert.Equal(t, 3, got.UnreadFor("parent-1"))
		assert.Equal(t, 0, got.UnreadFor("teacher-1"))
	})

	t.Run("send refreshes the denormalized last message", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")

		mustSend(t, svc, conv.ID, "teacher-1", "first")
		last := mustSend(t, svc, conv.ID, "parent-1", "latest")

		got := conversationOf(t, svc, "teacher-1", conv.ID)
		assert.Equal(t, "latest", got.LastMessageText)
		assert.Equal(t, "parent-1", got.LastMessageSenderID)
		require.NotNil(t, got.LastMessageAt)
		assert.Equal(t, last.Timestamp.Unix(), got.LastMessageAt.Unix())
	})

	t.Run("double send produces two distinct messages", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")

		a := mustSend(t, svc, conv.ID, "teacher-1", "hello")
		b := mustSend(t, svc, conv.ID, "teacher-1", "hello")
		assert.NotEqual(t, a.ID, b.ID)

		got := conversationOf(t, svc, "teacher-1", conv.ID)
		assert.Len(t, got.Messages, 2)
	})

	t.Run("a dangling reply reference is accepted and stored", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")

		msg, err := svc.Send(ctx, service.SendInput{
			SchoolID: testSchool, ConversationID: conv.ID, SenderID: "teacher-1",
			Content: "re: nothing", ReplyTo: "no-such-message",
		})
		require.NoError(t, err)
		assert.Equal(t, "no-such-message", msg.ReplyTo)

		got := conversationOf(t, svc, "teacher-1", conv.ID)
		assert.Nil(t, entity.ResolveReply(got.Messages, msg.ReplyTo))
	})

	t.Run("non-participants may not send", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")

		_, err := svc.Send(ctx, service.SendInput{
			SchoolID: testSchool, ConversationID: conv.ID, SenderID: "student-1", Content: "hi",
		})
		assert.ErrorIs(t, err, entity.ErrNotParticipant)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Send(ctx, service.SendInput{
			SchoolID: testSchool, ConversationID: "nope", SenderID: "teacher-1", Content: "hi",
		})
		assert.ErrorIs(t, err, entity.ErrConversationNotFound)
	})

	t.Run("blank content is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		_, err := svc.Send(ctx, service.SendInput{
			SchoolID: testSchool, ConversationID: conv.ID, SenderID: "teacher-1", Content: "   ",
		})
		assert.ErrorIs(t, err, entity.ErrEmptyMessage)
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()

	t.Run("clears the reader's counter and records the read", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		mustSend(t, svc, conv.ID, "teacher-1", "first")
		mustSend(t, svc, conv.ID, "teacher-1", "second")

		require.NoError(t, svc.MarkRead(ctx, service.MarkReadInput{
			SchoolID: testSchool, ConversationID: conv.ID, UserID: "parent-1",
		}))

		got := conversationOf(t, svc, "parent-1", conv.ID)
		assert.Equal(t, 0, got.UnreadFor("parent-1"))
		for _, msg := range got.Messages {
			assert.Equal(t, entity.MessageStatusRead, msg.Status)
			assert.True(t, msg.IsReadBy("parent-1"))
		}
	})

	t.Run("marking read twice is harmless", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		mustSend(t, svc, conv.ID, "teacher-1", "hello")

		in := service.MarkReadInput{SchoolID: testSchool, ConversationID: conv.ID, UserID: "parent-1"}
		require.NoError(t, svc.MarkRead(ctx, in))
		require.NoError(t, svc.MarkRead(ctx, in))

		got := conversationOf(t, svc, "parent-1", conv.ID)
		assert.Equal(t, []string{"parent-1"}, got.Messages[0].ReadBy)
	})

	t.Run("non-participants may not mark read", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		err := svc.MarkRead(ctx, service.MarkReadInput{
			SchoolID: testSchool, ConversationID: conv.ID, UserID: "student-1",
		})
		assert.ErrorIs(t, err, entity.ErrNotParticipant)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("sender deletes own message into a tombstone", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		before := mustSend(t, svc, conv.ID, "teacher-1", "oops")
		after := mustSend(t, svc, conv.ID, "parent-1", "what?")

		deleted, err := svc.Delete(ctx, service.DeleteInput{
			SchoolID: testSchool, ConversationID: conv.ID, MessageID: before.ID, RequesterID: "teacher-1",
		})
		require.NoError(t, err)
		assert.True(t, deleted)

		got := conversationOf(t, svc, "teacher-1", conv.ID)
		require.Len(t, got.Messages, 2)
		tomb := got.Messages[0]
		assert.Equal(t, before.ID, tomb.ID)
		assert.Equal(t, entity.TombstoneContent, tomb.Content)
		assert.True(t, tomb.IsSystem)
		assert.Equal(t, "teacher-1", tomb.SenderID)
		assert.Equal(t, before.Timestamp.Unix(), tomb.Timestamp.Unix())

		// The reply anchor survives deletion.
		assert.Equal(t, after.ID, got.Messages[1].ID)
	})

	t.Run("deleting a missing message is a recoverable false", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")

		deleted, err := svc.Delete(ctx, service.DeleteInput{
			SchoolID: testSchool, ConversationID: conv.ID, MessageID: "ghost", RequesterID: "teacher-1",
		})
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("non-sender without moderation is refused, content untouched", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "student-1")
		msg := mustSend(t, svc, conv.ID, "teacher-1", "keep this")

		deleted, err := svc.Delete(ctx, service.DeleteInput{
			SchoolID: testSchool, ConversationID: conv.ID, MessageID: msg.ID, RequesterID: "student-1",
		})
		require.NoError(t, err)
		assert.False(t, deleted)

		got := conversationOf(t, svc, "teacher-1", conv.ID)
		assert.Equal(t, "keep this", got.Messages[0].Content)
	})

	t.Run("an admin moderates someone else's message", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		msg := mustSend(t, svc, conv.ID, "teacher-1", "inappropriate")

		deleted, err := svc.Delete(ctx, service.DeleteInput{
			SchoolID: testSchool, ConversationID: conv.ID, MessageID: msg.ID, RequesterID: "admin-1",
		})
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("an unknown requester is refused", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		msg := mustSend(t, svc, conv.ID, "teacher-1", "hello")

		deleted, err := svc.Delete(ctx, service.DeleteInput{
			SchoolID: testSchool, ConversationID: conv.ID, MessageID: msg.ID, RequesterID: "ghost",
		})
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("an empty filter returns no results", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		mustSend(t, svc, conv.ID, "teacher-1", "hello")

		got, err := svc.Search(ctx, service.SearchInput{
			SchoolID: testSchool, UserID: "teacher-1", Filter: entity.Filter{},
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("keyword search finds the conversation", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		mustSend(t, svc, conv.ID, "teacher-1", "The field trip is on Monday")

		other := mustDirect(t, svc, "teacher-1", "student-1")
		mustSend(t, svc, other.ID, "teacher-1", "Homework reminder")

		got, err := svc.Search(ctx, service.SearchInput{
			SchoolID: testSchool, UserID: "teacher-1", Filter: entity.Filter{Keyword: "field trip"},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, conv.ID, got[0].ID)
	})

	t.Run("search is scoped to the requester's conversations", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		mustSend(t, svc, conv.ID, "teacher-1", "secret plans")

		got, err := svc.Search(ctx, service.SearchInput{
			SchoolID: testSchool, UserID: "student-1", Filter: entity.Filter{Keyword: "secret"},
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unread-only search sees the viewer's counters", func(t *testing.T) {
		svc, _ := newTestService(t)
		conv := mustDirect(t, svc, "teacher-1", "parent-1")
		mustSend(t, svc, conv.ID, "teacher-1", "unread for parent")

		got, err := svc.Search(ctx, service.SearchInput{
			SchoolID: testSchool, UserID: "parent-1", Filter: entity.Filter{UnreadOnly: true},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = svc.Search(ctx, service.SearchInput{
			SchoolID: testSchool, UserID: "teacher-1", Filter: entity.Filter{UnreadOnly: true},
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
