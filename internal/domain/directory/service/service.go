package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vadim/edudesk/internal/cache/port"
	"github.com/vadim/edudesk/internal/domain/directory/entity"
)

// Repository defines the interface for directory storage
type Repository interface {
	GetUser(ctx context.Context, schoolID, userID string) (*entity.User, error)
	ListUsersByRole(ctx context.Context, schoolID, role string) ([]entity.User, error)
	GetClass(ctx context.Context, schoolID, classID string) (*entity.Class, error)
	ListClasses(ctx context.Context, schoolID string) ([]entity.Class, error)
	ListClassStudents(ctx context.Context, schoolID, classID string) ([]entity.User, error)
}

// Service is a read-through directory: id lookups are cached as JSON with a
// TTL, list queries always hit the repository.
type Service struct {
	repo  Repository
	cache port.Cache
	ttl   time.Duration
}

// New creates a new directory service
func New(repo Repository, cache port.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// GetUser resolves a user by id through the cache
func (s *Service) GetUser(ctx context.Context, schoolID, userID string) (*entity.User, error) {
	key := fmt.Sprintf("directory:user:%s:%s", schoolID, userID)

	var user entity.User
	if ok, err := s.cacheGet(ctx, key, &user); err != nil {
		return nil, err
	} else if ok {
		return &user, nil
	}

	found, err := s.repo.GetUser(ctx, schoolID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if found == nil {
		return nil, nil
	}

	s.cacheSet(ctx, key, found)
	return found, nil
}

// ListUsersByRole returns all users of a school holding the given role
func (s *Service) ListUsersByRole(ctx context.Context, schoolID, role string) ([]entity.User, error) {
	users, err := s.repo.ListUsersByRole(ctx, schoolID, role)
	if err != nil {
		return nil, fmt.Errorf("listing users by role: %w", err)
	}
	return users, nil
}

// GetClass resolves a class by id through the cache
func (s *Service) GetClass(ctx context.Context, schoolID, classID string) (*entity.Class, error) {
	key := fmt.Sprintf("directory:class:%s:%s", schoolID, classID)

	var class entity.Class
	if ok, err := s.cacheGet(ctx, key, &class); err != nil {
		return nil, err
	} else if ok {
		return &class, nil
	}

	found, err := s.repo.GetClass(ctx, schoolID, classID)
	if err != nil {
		return nil, fmt.Errorf("getting class: %w", err)
	}
	if found == nil {
		return nil, nil
	}

	s.cacheSet(ctx, key, found)
	return found, nil
}

// ListClasses returns all classes of a school
func (s *Service) ListClasses(ctx context.Context, schoolID string) ([]entity.Class, error) {
	classes, err := s.repo.ListClasses(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	return classes, nil
}

// ListClassStudents returns the student roster of a class
func (s *Service) ListClassStudents(ctx context.Context, schoolID, classID string) ([]entity.User, error) {
	students, err := s.repo.ListClassStudents(ctx, schoolID, classID)
	if err != nil {
		return nil, fmt.Errorf("listing class roster: %w", err)
	}
	return students, nil
}

// cacheGet reads and decodes a cached record; a miss is not an error
func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.cache.Get(ctx, key)
	if errors.Is(err, port.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		// Corrupt entry: fall through to the repository.
		return false, nil
	}
	return true, nil
}

// cacheSet stores a record as JSON; cache write failures are non-fatal
func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, string(raw), s.ttl)
}
