package repositories

import (
	"context"
	"errors"
	"fmt"

	"explorer/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMFavoriteRepository is a GORM implementation of FavoriteRepository.
type GORMFavoriteRepository struct {
	db *gorm.DB
}

// NewGORMFavoriteRepository creates a new instance of GORMFavoriteRepository.
func NewGORMFavoriteRepository(db *gorm.DB) *GORMFavoriteRepository {
	return &GORMFavoriteRepository{
		db: db,
	}
}

// Create stores a new favorite. The composite unique index rejects a second
// row for the same user and country.
func (r *GORMFavoriteRepository) Create(ctx context.Context, favorite *models.Favorite) error {
	if favorite.ID == "" {
		favorite.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(favorite).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("favorite %s for user %s: %w", favorite.CountryCode, favorite.UserID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create favorite: %w", err)
	}
	return nil
}

// Get retrieves the favorite of a user for the given country.
func (r *GORMFavoriteRepository) Get(ctx context.Context, userID, countryCode string) (*models.Favorite, error) {
	var favorite models.Favorite
	err := r.db.WithContext(ctx).First(&favorite, "user_id = ? AND country_code = ?", userID, countryCode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("favorite %s for user %s: %w", countryCode, userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get favorite: %w", err)
	}
	return &favorite, nil
}

// Delete removes the favorite of a user for the given country.
func (r *GORMFavoriteRepository) Delete(ctx context.Context, userID, countryCode string) error {
	res := r.db.WithContext(ctx).Delete(&models.Favorite{}, "user_id = ? AND country_code = ?", userID, countryCode)
	if res.Error != nil {
		return fmt.Errorf("failed to delete favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("favorite %s for user %s not found for deletion: %w", countryCode, userID, ErrNotFound)
	}
	return nil
}

// ListByUser retrieves all favorites of a user, newest first.
func (r *GORMFavoriteRepository) ListByUser(ctx context.Context, userID string) ([]models.Favorite, error) {
	favorites := make([]models.Favorite, 0)
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&favorites).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return favorites, nil
}
