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
	"explorer/pkg/revocation"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Client-facing messages of the auth flows.
const (
	MsgMissingRegistration = "Please provide username, email and password"
	MsgMissingLogin        = "Please provide email and password"
	MsgUserExists          = "User with this email or username already exists"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgNotAuthorized       = "Not authorized to access this route"
	MsgIdentifierTaken     = "Email or username is already taken"
	MsgWrongPassword       = "Current password is incorrect"
	MsgMissingPasswords    = "Please provide current and new password"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// ProfileUpdate carries optional profile changes; empty fields are left untouched.
type ProfileUpdate struct {
	Username string
	Email    string
}

// AuthService handles registration, login and token validation.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration // Duration for which JWT is valid
	hashCost   int
	revoked    revocation.Store
	events     EventPublisher
	log        *zap.Logger
	now        func() time.Time
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithTokenDuration sets the lifetime of issued tokens.
func WithTokenDuration(d time.Duration) AuthOption {
	return func(s *AuthService) { s.tokenDurat = d }
}

// WithHashCost sets the bcrypt cost.
func WithHashCost(cost int) AuthOption {
	return func(s *AuthService) { s.hashCost = cost }
}

// WithRevocationStore enables server-side logout.
func WithRevocationStore(store revocation.Store) AuthOption {
	return func(s *AuthService) { s.revoked = store }
}

// WithAuthEvents sets the publisher for user events.
func WithAuthEvents(p EventPublisher) AuthOption {
	return func(s *AuthService) { s.events = p }
}

// WithAuthLogger sets the logger.
func WithAuthLogger(l *zap.Logger) AuthOption {
	return func(s *AuthService) { s.log = l }
}

// WithAuthClock overrides the time source.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, opts ...AuthOption) *AuthService {
	s := &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 30 * 24 * time.Hour,
		hashCost:   bcrypt.DefaultCost,
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokenDuration returns the lifetime of issued tokens.
func (s *AuthService) TokenDuration() time.Duration {
	return s.tokenDurat
}

// Register creates a user and issues a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, apperror.Validation(MsgMissingRegistration)
	}

	_, err := s.userRepo.FindByEmailOrUsername(ctx, email, username, "")
	switch {
	case err == nil:
		return nil, apperror.Conflict(MsgUserExists)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, s.serverError("register: lookup", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, s.serverError("register: hash password", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hashedPassword),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// A concurrent registration won the race; the unique index is authoritative.
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperror.Conflict(MsgUserExists)
		}
		return nil, s.serverError("register: create", err)
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.publish(EventUserRegistered, map[string]interface{}{
		"userId":   user.ID,
		"username": user.Username,
	})
	return result, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.Validation(MsgMissingLogin)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.Auth(MsgInvalidCredentials)
		}
		return nil, s.serverError("login: lookup", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperror.Auth(MsgInvalidCredentials)
	}

	return s.issue(user)
}

// Logout revokes the token when a revocation store is configured. Without
// one it does nothing: the client discards the token. It never fails.
func (s *AuthService) Logout(ctx context.Context, tokenString string) {
	if s.revoked == nil || tokenString == "" {
		return
	}
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return
	}
	if err := s.revoked.Revoke(ctx, jti, claimsExpiry(claims)); err != nil {
		s.log.Warn("failed to revoke token on logout", zap.Error(err))
	}
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if _, ok := claims["exp"]; !ok {
		return nil, fmt.Errorf("invalid token: missing expiry")
	}
	if id, _ := claims["user_id"].(string); id == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}
	return claims, nil
}

// ResolveIdentity returns the user a token was issued to.
func (s *AuthService) ResolveIdentity(ctx context.Context, tokenString string) (*models.User, error) {
	if tokenString == "" {
		return nil, apperror.Auth(MsgNotAuthorized)
	}
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		s.log.Debug("token rejected", zap.Error(err))
		return nil, apperror.Auth(MsgNotAuthorized)
	}

	if s.revoked != nil {
		jti, _ := claims["jti"].(string)
		revoked, err := s.revoked.IsRevoked(ctx, jti)
		if err != nil {
			return nil, s.serverError("resolve identity: revocation check", err)
		}
		if revoked {
			return nil, apperror.Auth(MsgNotAuthorized)
		}
	}

	userID, _ := claims["user_id"].(string)
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.Auth(MsgNotAuthorized)
		}
		return nil, s.serverError("resolve identity: lookup", err)
	}
	return user.Sanitize(), nil
}

// UpdateProfile changes username and/or email of a user.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if username != "" || email != "" {
		_, err := s.userRepo.FindByEmailOrUsername(ctx, email, username, userID)
		switch {
		case err == nil:
			return nil, apperror.Conflict(MsgIdentifierTaken)
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, s.serverError("update profile: lookup", err)
		}
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.Auth(MsgNotAuthorized)
		}
		return nil, s.serverError("update profile: load", err)
	}

	if username != "" {
		user.Username = username
	}
	if email != "" {
		user.Email = email
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperror.Conflict(MsgIdentifierTaken)
		}
		return nil, s.serverError("update profile: save", err)
	}
	return user.Sanitize(), nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperror.Validation(MsgMissingPasswords)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperror.Auth(MsgNotAuthorized)
		}
		return s.serverError("change password: load", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)); err != nil {
		return apperror.Auth(MsgWrongPassword)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return s.serverError("change password: hash", err)
	}
	user.Password = string(hashedPassword)

	if err := s.userRepo.Update(ctx, user); err != nil {
		return s.serverError("change password: save", err)
	}
	return nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenDurat)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"jti":     uuid.New().String(),
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, s.serverError("sign token", err)
	}

	return &AuthResult{
		Token:     tokenString,
		ExpiresAt: time.Unix(expiresAt.Unix(), 0),
		User:      user.Sanitize(),
	}, nil
}

func (s *AuthService) publish(name string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(name, payload); err != nil {
		s.log.Warn("failed to publish event", zap.String("event", name), zap.Error(err))
	}
}

func (s *AuthService) serverError(op string, err error) error {
	s.log.Error(op, zap.Error(err))
	return apperror.Server(fmt.Errorf("%s: %w", op, err))
}

func claimsExpiry(claims jwt.MapClaims) time.Time {
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0)
	case int64:
		return time.Unix(exp, 0)
	default:
		return time.Time{}
	}
}
