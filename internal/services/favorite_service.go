package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"explorer/internal/apperror"
	"explorer/internal/models"
	"explorer/internal/repositories"

	"go.uber.org/zap"
)

const (
	MsgMissingCountry    = "Country code and name are required"
	MsgAlreadyFavorite   = "Country already in favorites"
	MsgFavoriteNotFound  = "Favorite not found"
	MsgFavoriteRemoved   = "Country removed from favorites"
	maxCountryCodeLength = 16
)

// FavoriteInput carries the country being added.
type FavoriteInput struct {
	CountryCode string
	CountryName string
	FlagURL     string
}

// FavoriteService handles business logic related to favorite countries.
type FavoriteService struct {
	repo   repositories.FavoriteRepository
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewFavoriteService creates a new FavoriteService. events may be nil.
func NewFavoriteService(repo repositories.FavoriteRepository, events EventPublisher, log *zap.Logger) *FavoriteService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FavoriteService{
		repo:   repo,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// AddFavorite saves a country for the user.
func (s *FavoriteService) AddFavorite(ctx context.Context, userID string, in FavoriteInput) (*models.Favorite, error) {
	code := normalizeCode(in.CountryCode)
	name := strings.TrimSpace(in.CountryName)
	if code == "" || name == "" {
		return nil, apperror.Validation(MsgMissingCountry)
	}
	if len(code) > maxCountryCodeLength {
		return nil, apperror.Validation(fmt.Sprintf("Country code must be at most %d characters", maxCountryCodeLength))
	}

	// The pre-check only keeps the common case cheap; the unique index decides.
	_, err := s.repo.Get(ctx, userID, code)
	switch {
	case err == nil:
		return nil, apperror.Conflict(MsgAlreadyFavorite)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, s.serverError("add favorite: lookup", err)
	}

	favorite := &models.Favorite{
		UserID:      userID,
		CountryCode: code,
		CountryName: name,
		FlagURL:     strings.TrimSpace(in.FlagURL),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, favorite); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperror.Conflict(MsgAlreadyFavorite)
		}
		return nil, s.serverError("add favorite: create", err)
	}

	s.publish(EventFavoriteAdded, map[string]interface{}{
		"userId":      userID,
		"countryCode": code,
		"countryName": name,
	})
	return favorite, nil
}

// RemoveFavorite deletes the user's favorite for a country.
func (s *FavoriteService) RemoveFavorite(ctx context.Context, userID, countryCode string) error {
	code := normalizeCode(countryCode)
	if err := s.repo.Delete(ctx, userID, code); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperror.NotFound(MsgFavoriteNotFound)
		}
		return s.serverError("remove favorite", err)
	}

	s.publish(EventFavoriteRemoved, map[string]interface{}{
		"userId":      userID,
		"countryCode": code,
	})
	return nil
}

// ListFavorites returns the user's favorites, newest first.
func (s *FavoriteService) ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	favorites, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.serverError("list favorites", err)
	}
	if favorites == nil {
		favorites = []models.Favorite{}
	}
	return favorites, nil
}

// CheckFavorite reports whether the user saved the country. Absence is not an error.
func (s *FavoriteService) CheckFavorite(ctx context.Context, userID, countryCode string) (bool, error) {
	_, err := s.repo.Get(ctx, userID, normalizeCode(countryCode))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, s.serverError("check favorite", err)
	}
	return true, nil
}

func (s *FavoriteService) publish(name string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(name, payload); err != nil {
		s.log.Warn("failed to publish event", zap.String("event", name), zap.Error(err))
	}
}

func (s *FavoriteService) serverError(op string, err error) error {
	s.log.Error(op, zap.Error(err))
	return apperror.Server(fmt.Errorf("%s: %w", op, err))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
