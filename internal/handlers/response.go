package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"explorer/internal/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	msgInvalidBody      = "Invalid request body"
	msgValidationFailed = "Validation failed"
)

// respondError writes the {success:false, message} envelope for err. Server
// errors are logged with their cause and answered with a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := apperror.KindOf(err)
	if kind == apperror.KindServer {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(kind.HTTPStatus()).JSON(fiber.Map{
		"success": false,
		"message": apperror.Message(err),
	})
}

// bind parses the JSON body into out and runs struct validation. It returns
// false after writing a 400 response when either step fails.
func bind(c *fiber.Ctx, validate *validator.Validate, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msgInvalidBody,
		})
	}
	if err := validate.Struct(out); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, err
		}
		errorMessages := make(map[string]string, len(validationErrors))
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msgValidationFailed,
			"errors":  errorMessages,
		})
	}
	return true, nil
}

// newValidator reports JSON field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
