package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"explorer/internal/models"

	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateLoading
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNotAuthenticated is returned by operations that need a signed-in session.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrToggleInProgress is returned when the same country is toggled again
	// before the previous toggle has completed.
	ErrToggleInProgress = errors.New("favorite toggle already in progress")
	// ErrFavoritesLoading is returned by toggles attempted before the
	// favorites of a new session have been fetched.
	ErrFavoritesLoading = errors.New("favorites are still loading")
)

// Session holds the signed-in user and a local copy of their favorites.
// Favorite toggles are applied locally first and rolled back if the server
// rejects them. A Session is safe for concurrent use.
type Session struct {
	api    API
	tokens TokenStore
	log    *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	token     string
	user      *models.User
	favorites []models.Favorite
	loading   bool
	pending   map[string]struct{}
	// epoch changes whenever the identity changes; completions from an
	// older epoch must not touch the cache.
	epoch   uint64
	lastErr error
}

// NewSession creates an unauthenticated session. Call Mount to restore a
// persisted token.
func NewSession(api API, tokens TokenStore, log *zap.Logger) *Session {
	if tokens == nil {
		tokens = NewMemoryTokenStore("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		api:     api,
		tokens:  tokens,
		log:     log,
		now:     time.Now,
		pending: make(map[string]struct{}),
	}
}

// Mount restores the session from the persisted token, if any. When the
// token no longer resolves to a user it is discarded.
func (s *Session) Mount(ctx context.Context) error {
	epoch := s.begin()

	token, err := s.tokens.Load()
	if err != nil {
		s.fail(epoch, err)
		return fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		s.fail(epoch, nil)
		return nil
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		s.log.Info("persisted token rejected", zap.Error(err))
		if clearErr := s.tokens.Clear(); clearErr != nil {
			s.log.Warn("failed to discard token", zap.Error(clearErr))
		}
		s.fail(epoch, err)
		return err
	}

	s.authenticate(ctx, epoch, token, user)
	return nil
}

// Register creates an account and signs in.
func (s *Session) Register(ctx context.Context, username, email, password string) error {
	return s.signIn(ctx, func() (*AuthResponse, error) {
		return s.api.Register(ctx, username, email, password)
	})
}

// Login signs in with email and password.
func (s *Session) Login(ctx context.Context, email, password string) error {
	return s.signIn(ctx, func() (*AuthResponse, error) {
		return s.api.Login(ctx, email, password)
	})
}

func (s *Session) signIn(ctx context.Context, call func() (*AuthResponse, error)) error {
	epoch := s.begin()

	resp, err := call()
	if err != nil {
		s.fail(epoch, err)
		return err
	}
	if err := s.tokens.Save(resp.Token); err != nil {
		s.log.Warn("failed to persist token", zap.Error(err))
	}
	s.authenticate(ctx, epoch, resp.Token, resp.User)
	return nil
}

// Logout ends the session. The cache is cleared immediately; toggles still
// in flight complete on the server but no longer affect this session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.reset()
	s.mu.Unlock()

	if token != "" {
		if err := s.api.Logout(ctx, token); err != nil {
			s.log.Warn("server logout failed", zap.Error(err))
		}
	}
	return s.tokens.Clear()
}

// ToggleFavorite adds the country when it is not a favorite and removes it
// otherwise. It reports whether the country is a favorite afterwards.
func (s *Session) ToggleFavorite(ctx context.Context, in FavoriteInput) (bool, error) {
	code := normalizeCode(in.CountryCode)
	if code == "" {
		return false, errors.New("country code is required")
	}
	in.CountryCode = code

	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return false, ErrNotAuthenticated
	}
	if s.loading {
		s.mu.Unlock()
		return false, ErrFavoritesLoading
	}
	if _, busy := s.pending[code]; busy {
		s.mu.Unlock()
		return false, ErrToggleInProgress
	}

	op := s.planLocked(in)
	s.favorites = op.apply(s.favorites)
	s.pending[code] = struct{}{}
	epoch, token := s.epoch, s.token
	s.mu.Unlock()

	var created *models.Favorite
	var err error
	if op.kind == opAdd {
		created, err = s.api.AddFavorite(ctx, token, in)
	} else {
		err = s.api.RemoveFavorite(ctx, token, code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// logged out or switched user meanwhile
		return op.kind == opAdd && err == nil, err
	}
	delete(s.pending, code)

	if err != nil {
		s.favorites = op.inverse().apply(s.favorites)
		s.lastErr = err
		s.log.Warn("favorite toggle rolled back",
			zap.String("countryCode", code),
			zap.Stringer("op", op.kind),
			zap.Error(err),
		)
		return op.kind == opRemove, err
	}

	if created != nil {
		s.replaceLocked(*created)
	}
	return op.kind == opAdd, nil
}

// IsFavorite reports whether the country is in the local cache.
func (s *Session) IsFavorite(countryCode string) bool {
	code := normalizeCode(countryCode)
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.favorites, code) >= 0
}

// Favorites returns a copy of the cached favorites, newest first.
func (s *Session) Favorites() []models.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Favorite, len(s.favorites))
	copy(out, s.favorites)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the signed-in user, or nil.
func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// LastError returns the most recent failure of a background step such as
// loading favorites or a rolled back toggle.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// begin moves the session to Loading under a fresh epoch.
func (s *Session) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.state = StateLoading
	return s.epoch
}

func (s *Session) fail(epoch uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.state = StateUnauthenticated
	if err != nil {
		s.lastErr = err
	}
}

func (s *Session) authenticate(ctx context.Context, epoch uint64, token string, user *models.User) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.state = StateAuthenticated
	s.token = token
	s.user = user
	s.loading = true
	s.mu.Unlock()

	favorites, err := s.api.ListFavorites(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.loading = false
	if err != nil {
		s.log.Warn("failed to load favorites", zap.Error(err))
		s.lastErr = err
		return
	}
	// toggles are refused while loading, so the server list is the whole cache
	s.favorites = favorites
}

// reset clears identity and cache and starts a new epoch. Caller holds mu.
func (s *Session) reset() {
	s.epoch++
	s.state = StateUnauthenticated
	s.token = ""
	s.user = nil
	s.favorites = nil
	s.loading = false
	s.pending = make(map[string]struct{})
}

func (s *Session) planLocked(in FavoriteInput) favoriteOp {
	if i := indexOf(s.favorites, in.CountryCode); i >= 0 {
		return favoriteOp{kind: opRemove, favorite: s.favorites[i], index: i}
	}
	return favoriteOp{
		kind: opAdd,
		favorite: models.Favorite{
			CountryCode: in.CountryCode,
			CountryName: in.CountryName,
			FlagURL:     in.FlagURL,
			CreatedAt:   s.now(),
		},
		index: 0,
	}
}

func (s *Session) replaceLocked(f models.Favorite) {
	if i := indexOf(s.favorites, f.CountryCode); i >= 0 {
		s.favorites[i] = f
	}
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

func (k opKind) String() string {
	if k == opAdd {
		return "add"
	}
	return "remove"
}

// favoriteOp is one tentative change to the cache. index is where the
// favorite is inserted by an add, or where it was before a remove.
type favoriteOp struct {
	kind     opKind
	favorite models.Favorite
	index    int
}

func (op favoriteOp) inverse() favoriteOp {
	inv := op
	if op.kind == opAdd {
		inv.kind = opRemove
	} else {
		inv.kind = opAdd
	}
	return inv
}

// apply returns list with op applied. list itself is not modified.
func (op favoriteOp) apply(list []models.Favorite) []models.Favorite {
	out := make([]models.Favorite, 0, len(list)+1)
	switch op.kind {
	case opAdd:
		if indexOf(list, op.favorite.CountryCode) >= 0 {
			return append(out, list...)
		}
		i := op.index
		if i < 0 || i > len(list) {
			i = len(list)
		}
		out = append(out, list[:i]...)
		out = append(out, op.favorite)
		return append(out, list[i:]...)
	default:
		for _, f := range list {
			if f.CountryCode != op.favorite.CountryCode {
				out = append(out, f)
			}
		}
		return out
	}
}

func indexOf(list []models.Favorite, code string) int {
	for i, f := range list {
		if f.CountryCode == code {
			return i
		}
	}
	return -1
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
