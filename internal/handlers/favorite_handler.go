package handlers

import (
	"explorer/internal/middleware"
	"explorer/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// FavoriteHandler handles HTTP requests for the favorites of the current user.
type FavoriteHandler struct {
	service  *services.FavoriteService
	validate *validator.Validate
	log      *zap.Logger
}

// NewFavoriteHandler creates a new FavoriteHandler.
func NewFavoriteHandler(service *services.FavoriteService, log *zap.Logger) *FavoriteHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FavoriteHandler{service: service, validate: newValidator(), log: log}
}

// RegisterRoutes mounts the favorite routes behind authRequired.
func (h *FavoriteHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	favoriteRoutes := router.Group("/favorites", authRequired)
	favoriteRoutes.Get("/", h.HandleListFavorites)
	favoriteRoutes.Post("/", h.HandleAddFavorite)
	favoriteRoutes.Get("/:code", h.HandleCheckFavorite)
	favoriteRoutes.Delete("/:code", h.HandleRemoveFavorite)
}

// FavoriteRequest represents the request body for adding a favorite.
type FavoriteRequest struct {
	CountryCode string `json:"countryCode" validate:"omitempty,max=16"`
	CountryName string `json:"countryName" validate:"omitempty,max=200"`
	FlagURL     string `json:"flagUrl" validate:"omitempty,url"`
}

// HandleListFavorites returns the favorites newest first.
func (h *FavoriteHandler) HandleListFavorites(c *fiber.Ctx) error {
	favorites, err := h.service.ListFavorites(c.UserContext(), middleware.CurrentUser(c).ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(favorites),
		"data":    favorites,
	})
}

// HandleAddFavorite adds a country to the favorites.
func (h *FavoriteHandler) HandleAddFavorite(c *fiber.Ctx) error {
	var req FavoriteRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}

	favorite, err := h.service.AddFavorite(c.UserContext(), middleware.CurrentUser(c).ID, services.FavoriteInput{
		CountryCode: req.CountryCode,
		CountryName: req.CountryName,
		FlagURL:     req.FlagURL,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    favorite,
	})
}

// HandleCheckFavorite reports whether a country is among the favorites.
func (h *FavoriteHandler) HandleCheckFavorite(c *fiber.Ctx) error {
	isFavorite, err := h.service.CheckFavorite(c.UserContext(), middleware.CurrentUser(c).ID, c.Params("code"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"isFavorite": isFavorite,
	})
}

// HandleRemoveFavorite removes a country from the favorites.
func (h *FavoriteHandler) HandleRemoveFavorite(c *fiber.Ctx) error {
	if err := h.service.RemoveFavorite(c.UserContext(), middleware.CurrentUser(c).ID, c.Params("code")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": services.MsgFavoriteRemoved,
	})
}
