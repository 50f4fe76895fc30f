package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"explorer/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoFavoriteRepository is a MongoDB implementation of FavoriteRepository.
type MongoFavoriteRepository struct {
	coll *mongo.Collection
}

// NewMongoFavoriteRepository creates a new instance of MongoFavoriteRepository.
func NewMongoFavoriteRepository(db *mongo.Database) *MongoFavoriteRepository {
	return &MongoFavoriteRepository{coll: db.Collection(favoritesCollection)}
}

// Create inserts a favorite; the compound unique index rejects duplicates.
func (r *MongoFavoriteRepository) Create(ctx context.Context, favorite *models.Favorite) error {
	if favorite.ID == "" {
		favorite.ID = uuid.New().String()
	}
	if favorite.CreatedAt.IsZero() {
		favorite.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, favorite); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("favorite %s for user %s: %w", favorite.CountryCode, favorite.UserID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create favorite: %w", err)
	}
	return nil
}

// Get retrieves the favorite of a user for a country.
func (r *MongoFavoriteRepository) Get(ctx context.Context, userID, countryCode string) (*models.Favorite, error) {
	var favorite models.Favorite
	err := r.coll.FindOne(ctx, bson.M{"userId": userID, "countryCode": countryCode}).Decode(&favorite)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("favorite %s for user %s: %w", countryCode, userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get favorite: %w", err)
	}
	return &favorite, nil
}

// Delete removes the favorite of a user for a country.
func (r *MongoFavoriteRepository) Delete(ctx context.Context, userID, countryCode string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"userId": userID, "countryCode": countryCode})
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("favorite %s for user %s not found for deletion: %w", countryCode, userID, ErrNotFound)
	}
	return nil
}

// ListByUser returns the user's favorites, newest first.
func (r *MongoFavoriteRepository) ListByUser(ctx context.Context, userID string) ([]models.Favorite, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer cur.Close(ctx)

	favorites := make([]models.Favorite, 0)
	if err := cur.All(ctx, &favorites); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	return favorites, nil
}
