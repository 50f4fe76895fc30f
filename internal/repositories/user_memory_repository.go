package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"explorer/internal/models"

	"github.com/google/uuid"
)

// MemoryUserRepository is an in-memory implementation of UserRepository.
// Username and email uniqueness is enforced on every write.
type MemoryUserRepository struct {
	users map[string]models.User
	mu    sync.RWMutex
}

// NewMemoryUserRepository creates a new instance of MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]models.User),
	}
}

// Create adds a new user.
func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if r.takenLocked(user.Email, user.Username, user.ID) {
		return fmt.Errorf("failed to create user %s: %w", user.Username, ErrDuplicate)
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

// Update replaces an existing user.
func (r *MemoryUserRepository) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return fmt.Errorf("user with ID %s not found for update: %w", user.ID, ErrNotFound)
	}
	if r.takenLocked(user.Email, user.Username, user.ID) {
		return fmt.Errorf("failed to update user %s: %w", user.ID, ErrDuplicate)
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

// GetByID returns a user by its ID.
func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &user, nil
}

// GetByEmail returns a user by email.
func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email }, email)
}

// GetByUsername returns a user by username.
func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username }, username)
}

// FindByEmailOrUsername returns any other user holding the email or username.
func (r *MemoryUserRepository) FindByEmailOrUsername(_ context.Context, email, username, excludeID string) (*models.User, error) {
	return r.find(func(u models.User) bool {
		if u.ID == excludeID {
			return false
		}
		return (email != "" && u.Email == email) || (username != "" && u.Username == username)
	}, email+"/"+username)
}

func (r *MemoryUserRepository) find(match func(models.User) bool, label string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if match(user) {
			u := user
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", label, ErrNotFound)
}

func (r *MemoryUserRepository) takenLocked(email, username, selfID string) bool {
	for id, user := range r.users {
		if id == selfID {
			continue
		}
		if user.Email == email || user.Username == username {
			return true
		}
	}
	return false
}
