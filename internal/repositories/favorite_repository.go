package repositories

import (
	"context"

	"explorer/internal/models"
)

// FavoriteRepository defines the interface for favorite data access.
type FavoriteRepository interface {
	// Create stores a favorite; ErrDuplicate if (UserID, CountryCode) exists.
	Create(ctx context.Context, favorite *models.Favorite) error
	// Get returns the favorite for (userID, countryCode) or ErrNotFound.
	Get(ctx context.Context, userID, countryCode string) (*models.Favorite, error)
	// Delete removes the favorite for (userID, countryCode) or returns ErrNotFound.
	Delete(ctx context.Context, userID, countryCode string) error
	// ListByUser returns the user's favorites, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Favorite, error)
}
