package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/edudesk/internal/cache/adapter"
	"github.com/vadim/edudesk/internal/domain/directory/entity"
	"github.com/vadim/edudesk/internal/domain/directory/service"
)

// fakeRepo counts lookups so cache hits are observable
type fakeRepo struct {
	users    map[string]entity.User
	getCalls int
}

func (f *fakeRepo) GetUser(ctx context.Context, schoolID, userID string) (*entity.User, error) {
	f.getCalls++
	if u, ok := f.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeRepo) ListUsersByRole(ctx context.Context, schoolID, role string) ([]entity.User, error) {
	var out []entity.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetClass(ctx context.Context, schoolID, classID string) (*entity.Class, error) {
	return nil, nil
}

func (f *fakeRepo) ListClasses(ctx context.Context, schoolID string) ([]entity.Class, error) {
	return nil, nil
}

func (f *fakeRepo) ListClassStudents(ctx context.Context, schoolID, classID string) ([]entity.User, error) {
	return nil, nil
}

func TestGetUserReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{users: map[string]entity.User{
		"u1": {ID: "u1", SchoolID: "s1", FirstName: "Tara", Role: "teacher"},
	}}
	svc := service.New(repo, adapter.NewMemoryCache(), time.Minute)

	first, err := svc.GetUser(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Tara", first.FirstName)
	assert.Equal(t, 1, repo.getCalls)

	// Second lookup is served from the cache.
	second, err := svc.GetUser(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.getCalls)
}

func TestGetUserMissIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{users: map[string]entity.User{}}
	svc := service.New(repo, adapter.NewMemoryCache(), time.Minute)

	got, err := svc.GetUser(ctx, "s1", "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = svc.GetUser(ctx, "s1", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.getCalls)
}
