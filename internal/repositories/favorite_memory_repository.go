package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"explorer/internal/models"

	"github.com/google/uuid"
)

type favoriteKey struct {
	userID      string
	countryCode string
}

// MemoryFavoriteRepository is an in-memory implementation of FavoriteRepository.
type MemoryFavoriteRepository struct {
	favorites map[favoriteKey]models.Favorite
	mu        sync.RWMutex
}

// NewMemoryFavoriteRepository creates a new instance of MemoryFavoriteRepository.
func NewMemoryFavoriteRepository() *MemoryFavoriteRepository {
	return &MemoryFavoriteRepository{
		favorites: make(map[favoriteKey]models.Favorite),
	}
}

// Create adds a new favorite.
func (r *MemoryFavoriteRepository) Create(_ context.Context, favorite *models.Favorite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := favoriteKey{favorite.UserID, favorite.CountryCode}
	if _, ok := r.favorites[key]; ok {
		return fmt.Errorf("favorite %s for user %s: %w", favorite.CountryCode, favorite.UserID, ErrDuplicate)
	}
	if favorite.ID == "" {
		favorite.ID = uuid.New().String()
	}
	if favorite.CreatedAt.IsZero() {
		favorite.CreatedAt = time.Now()
	}
	r.favorites[key] = *favorite
	return nil
}

// Get returns the favorite for a user and country.
func (r *MemoryFavoriteRepository) Get(_ context.Context, userID, countryCode string) (*models.Favorite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	favorite, ok := r.favorites[favoriteKey{userID, countryCode}]
	if !ok {
		return nil, fmt.Errorf("favorite %s for user %s: %w", countryCode, userID, ErrNotFound)
	}
	return &favorite, nil
}

// Delete removes the favorite for a user and country.
func (r *MemoryFavoriteRepository) Delete(_ context.Context, userID, countryCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := favoriteKey{userID, countryCode}
	if _, ok := r.favorites[key]; !ok {
		return fmt.Errorf("favorite %s for user %s not found for deletion: %w", countryCode, userID, ErrNotFound)
	}
	delete(r.favorites, key)
	return nil
}

// ListByUser returns the user's favorites, newest first.
func (r *MemoryFavoriteRepository) ListByUser(_ context.Context, userID string) ([]models.Favorite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Favorite, 0)
	for key, favorite := range r.favorites {
		if key.userID == userID {
			list = append(list, favorite)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CountryCode < list[j].CountryCode
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}
