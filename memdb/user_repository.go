// Package memdb holds transient in-memory repositories, the default
// storage for this boilerplate. All state is lost on restart.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/webstarter/domain"
	"go.pilab.hu/webstarter/sanitize"
)

// UserRepository implements domain.UserRepository on a mutex-guarded map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User // keyed by user ID
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]domain.User),
	}
}

// CreateUser implements domain.UserRepository. Email uniqueness is
// case-insensitive.
func (r *UserRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.ErrDuplicateEmail
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	r.users[user.ID] = *user

	return nil
}

// GetUserByID implements domain.UserRepository.
func (r *UserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	return &user, nil
}

// GetUserByEmail implements domain.UserRepository.
func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}

	return nil, domain.ErrUserNotFound
}

// UpdateUser implements domain.UserRepository.
func (r *UserRepository) UpdateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}

	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = *user

	return nil
}

// ListUsers implements domain.UserRepository. The filter is sanitized the
// same way the MongoDB repository sanitizes it; only the "email" and "id"
// keys are honored here.
func (r *UserRepository) ListUsers(_ context.Context, filter map[string]any) ([]*domain.User, error) {
	filter = sanitize.CleanMap(filter)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.User
	for _, user := range r.users {
		if email, ok := filter["email"].(string); ok && !strings.EqualFold(user.Email, email) {
			continue
		}
		if id, ok := filter["id"].(string); ok && user.ID != id {
			continue
		}
		u := user
		out = append(out, &u)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })

	return out, nil
}

var _ domain.UserRepository = (*UserRepository)(nil)
