package middleware

import (
	"context"
	"strings"

	"explorer/internal/apperror"
	"explorer/internal/models"
	"explorer/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenCookie is the name of the HTTP-only cookie carrying the session token.
const TokenCookie = "token"

const (
	localsUser  = "user"
	localsToken = "token"
)

// IdentityResolver turns a bearer token into the user it was issued to.
// Implemented by *services.AuthService.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*models.User, error)
}

// AuthRequired is a Fiber middleware that admits only requests carrying a
// valid token, either as "Authorization: Bearer <token>" or in the token
// cookie. The resolved user is stored in the request locals.
func AuthRequired(resolver IdentityResolver, log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c)
		if token == "" {
			return reject(c, apperror.Auth(services.MsgNotAuthorized))
		}

		user, err := resolver.ResolveIdentity(c.UserContext(), token)
		if err != nil {
			if apperror.KindOf(err) == apperror.KindServer {
				log.Error("identity resolution failed", zap.String("path", c.Path()), zap.Error(err))
			} else {
				log.Debug("request rejected", zap.String("path", c.Path()), zap.Error(err))
			}
			return reject(c, err)
		}

		c.Locals(localsUser, user)
		c.Locals(localsToken, token)
		return c.Next()
	}
}

// ExtractToken returns the bearer token from the Authorization header, or
// from the token cookie when no header is present.
func ExtractToken(c *fiber.Ctx) string {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Cookies(TokenCookie)
}

// CurrentUser returns the user attached by AuthRequired, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localsUser).(*models.User)
	return user
}

// CurrentToken returns the token attached by AuthRequired.
func CurrentToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localsToken).(string)
	return token
}

func reject(c *fiber.Ctx, err error) error {
	kind := apperror.KindOf(err)
	msg := apperror.Message(err)
	if kind != apperror.KindServer && kind != apperror.KindAuth {
		kind, msg = apperror.KindAuth, services.MsgNotAuthorized
	}
	return c.Status(kind.HTTPStatus()).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}
