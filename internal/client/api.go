// Package client is the consumer side of the API: an HTTP client for the
// REST surface and a Session that caches identity and favorites locally.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"explorer/internal/models"

	"github.com/gofiber/fiber/v2"
)

// API is the server surface the Session depends on.
type API interface {
	Register(ctx context.Context, username, email, password string) (*AuthResponse, error)
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*models.User, error)
	ListFavorites(ctx context.Context, token string) ([]models.Favorite, error)
	AddFavorite(ctx context.Context, token string, in FavoriteInput) (*models.Favorite, error)
	RemoveFavorite(ctx context.Context, token, countryCode string) error
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string
	User  *models.User
}

// FavoriteInput describes a country to add to the favorites.
type FavoriteInput struct {
	CountryCode string `json:"countryCode"`
	CountryName string `json:"countryName"`
	FlagURL     string `json:"flagUrl,omitempty"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == fiber.StatusUnauthorized
}

type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Token      string            `json:"token"`
	User       *models.User      `json:"user"`
	Data       json.RawMessage   `json:"data"`
	Count      int               `json:"count"`
	IsFavorite bool              `json:"isFavorite"`
	Errors     map[string]string `json:"errors"`
}

// HTTPClient implements API over HTTP with fiber's client agent.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
}

// NewHTTPClient creates a client for the API mounted at baseURL,
// e.g. "http://localhost:5000/api".
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

func (c *HTTPClient) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	env, err := c.do(ctx, fiber.Post(c.baseURL+"/auth/register").JSON(body), "")
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: env.Token, User: env.User}, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	env, err := c.do(ctx, fiber.Post(c.baseURL+"/auth/login").JSON(body), "")
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: env.Token, User: env.User}, nil
}

func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, fiber.Get(c.baseURL+"/auth/logout"), token)
	return err
}

func (c *HTTPClient) Me(ctx context.Context, token string) (*models.User, error) {
	env, err := c.do(ctx, fiber.Get(c.baseURL+"/auth/me"), token)
	if err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, fmt.Errorf("me: response carries no user")
	}
	return env.User, nil
}

func (c *HTTPClient) ListFavorites(ctx context.Context, token string) ([]models.Favorite, error) {
	env, err := c.do(ctx, fiber.Get(c.baseURL+"/favorites"), token)
	if err != nil {
		return nil, err
	}
	favorites := []models.Favorite{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &favorites); err != nil {
			return nil, fmt.Errorf("decode favorites: %w", err)
		}
	}
	return favorites, nil
}

func (c *HTTPClient) AddFavorite(ctx context.Context, token string, in FavoriteInput) (*models.Favorite, error) {
	env, err := c.do(ctx, fiber.Post(c.baseURL+"/favorites").JSON(in), token)
	if err != nil {
		return nil, err
	}
	var favorite models.Favorite
	if err := json.Unmarshal(env.Data, &favorite); err != nil {
		return nil, fmt.Errorf("decode favorite: %w", err)
	}
	return &favorite, nil
}

func (c *HTTPClient) RemoveFavorite(ctx context.Context, token, countryCode string) error {
	_, err := c.do(ctx, fiber.Delete(c.baseURL+"/favorites/"+url.PathEscape(countryCode)), token)
	return err
}

// do sends the request prepared on agent and decodes the JSON envelope.
// The agent is released by fiber once the response is read.
func (c *HTTPClient) do(ctx context.Context, agent *fiber.Agent, token string) (*envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("request failed: %w", errors.Join(errs...))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status < 200 || status >= 300 {
			return nil, &APIError{Status: status, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if status < 200 || status >= 300 || !env.Success {
		return nil, &APIError{Status: status, Message: env.Message}
	}
	return &env, nil
}
