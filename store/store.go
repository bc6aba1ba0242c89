// Package store provides database access to all raw objects.
package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/store/cache"
)

// Driver is an interface for database drivers.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, create *UserProfile) (*UserProfile, error)
	GetUser(ctx context.Context, find *FindUser) (*UserProfile, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*UserProfile, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*UserProfile, error)
	DeleteUser(ctx context.Context, id string) error
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	userCache *cache.LRUCache[string, *UserProfile]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:    driver,
		profile:   profile,
		userCache: cache.New[string, *UserProfile](1000, 10*time.Minute),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateUser creates a user. When the caller does not supply an ID (e.g. the
// identity provider does), a short opaque one is generated.
func (s *Store) CreateUser(ctx context.Context, create *UserProfile) (*UserProfile, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	now := time.Now().Unix()
	create.CreatedTs = now
	create.UpdatedTs = now

	user, err := s.driver.CreateUser(ctx, create)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(user.ID, user)
	return user, nil
}

// GetUser finds a single user, reading through the user cache for ID lookups.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*UserProfile, error) {
	if find.ID != nil && find.Email == nil {
		if user, ok := s.userCache.Get(*find.ID); ok {
			return user, nil
		}
	}

	user, err := s.driver.GetUser(ctx, find)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(user.ID, user)
	return user, nil
}

// ListUsers lists users matching the find conditions.
func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*UserProfile, error) {
	return s.driver.ListUsers(ctx, find)
}

// ListUsersByIDs batch-loads users keyed by ID. Unknown IDs are simply absent
// from the result map.
func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) (map[string]*UserProfile, error) {
	result := make(map[string]*UserProfile, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.userCache.Get(id); ok {
			result[id] = user
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	users, err := s.driver.ListUsers(ctx, &FindUser{IDs: missing})
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		result[user.ID] = user
		s.userCache.Set(user.ID, user)
	}
	return result, nil
}

// UpdateUser updates a user and invalidates its cache entry.
func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*UserProfile, error) {
	user, err := s.driver.UpdateUser(ctx, update)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(user.ID, user)
	return user, nil
}

// DeleteUser removes a user and its cache entry.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.driver.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.userCache.Remove(id)
	return nil
}
