package handlers

import (
	"explorer/internal/middleware"
	"explorer/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserHandler serves profile and password updates of the current user.
type UserHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
	log         *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *services.AuthService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{authService: authService, validate: newValidator(), log: log}
}

// RegisterRoutes mounts the user routes behind authRequired.
func (h *UserHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	userRoutes := router.Group("/users", authRequired)
	userRoutes.Put("/profile", h.HandleUpdateProfile)
	userRoutes.Put("/password", h.HandleChangePassword)
}

// ProfileRequest represents the request body for a profile update.
type ProfileRequest struct {
	Username string `json:"username" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
}

// PasswordRequest represents the request body for a password change.
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"omitempty,max=72"`
}

// HandleUpdateProfile changes the username and/or email of the current user.
func (h *UserHandler) HandleUpdateProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}

	user, err := h.authService.UpdateProfile(c.UserContext(), middleware.CurrentUser(c).ID, services.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

// HandleChangePassword replaces the password of the current user.
func (h *UserHandler) HandleChangePassword(c *fiber.Ctx) error {
	var req PasswordRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}

	err := h.authService.ChangePassword(c.UserContext(), middleware.CurrentUser(c).ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password updated successfully",
	})
}
