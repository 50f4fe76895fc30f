package repositories

import (
	"context"

	"explorer/internal/models"
)

// UserRepository defines the interface for user data access.
// Lookups return ErrNotFound when nothing matches; writes return ErrDuplicate
// when the username or email is already in use.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// FindByEmailOrUsername returns any user whose email or username matches,
	// ignoring the user with ID excludeID. Empty arguments never match.
	FindByEmailOrUsername(ctx context.Context, email, username, excludeID string) (*models.User, error)
}
