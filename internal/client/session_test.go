package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"explorer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var ctx = context.Background()

var testUser = &models.User{ID: "user-1", Username: "testuser", Email: "test@example.com"}

func favorite(code string, age time.Duration) models.Favorite {
	return models.Favorite{
		ID:          "fav-" + code,
		UserID:      testUser.ID,
		CountryCode: code,
		CountryName: code + " name",
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(-age),
	}
}

func codes(list []models.Favorite) []string {
	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.CountryCode)
	}
	return out
}

// mountedSession returns an authenticated session whose cache holds favorites.
func mountedSession(t *testing.T, api *MockAPI, favorites []models.Favorite) *Session {
	t.Helper()
	api.On("Me", mock.Anything, "tok").Return(testUser, nil).Once()
	api.On("ListFavorites", mock.Anything, "tok").Return(favorites, nil).Once()

	s := NewSession(api, NewMemoryTokenStore("tok"), zaptest.NewLogger(t))
	require.NoError(t, s.Mount(ctx))
	require.Equal(t, StateAuthenticated, s.State())
	return s
}

func TestMount_NoToken(t *testing.T) {
	api := new(MockAPI)
	s := NewSession(api, NewMemoryTokenStore(""), zaptest.NewLogger(t))

	require.NoError(t, s.Mount(ctx))
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())
	api.AssertNotCalled(t, "Me", mock.Anything, mock.Anything)
}

func TestMount_RestoresSession(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, []models.Favorite{favorite("FRA", 0), favorite("DEU", time.Hour)})

	assert.Equal(t, "testuser", s.User().Username)
	assert.Equal(t, []string{"FRA", "DEU"}, codes(s.Favorites()))
	assert.True(t, s.IsFavorite("fra"))
	assert.NoError(t, s.LastError())
	api.AssertExpectations(t)
}

func TestMount_RejectedTokenIsDiscarded(t *testing.T) {
	api := new(MockAPI)
	tokens := NewMemoryTokenStore("expired")
	rejected := &APIError{Status: 401, Message: "Not authorized to access this route"}
	api.On("Me", mock.Anything, "expired").Return(nil, rejected).Once()

	s := NewSession(api, tokens, zaptest.NewLogger(t))
	err := s.Mount(ctx)

	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, StateUnauthenticated, s.State())
	token, _ := tokens.Load()
	assert.Empty(t, token)
	api.AssertNotCalled(t, "ListFavorites", mock.Anything, mock.Anything)
}

func TestMount_FavoritesFailureKeepsSession(t *testing.T) {
	api := new(MockAPI)
	boom := errors.New("network down")
	api.On("Me", mock.Anything, "tok").Return(testUser, nil).Once()
	api.On("ListFavorites", mock.Anything, "tok").Return(nil, boom).Once()

	s := NewSession(api, NewMemoryTokenStore("tok"), zaptest.NewLogger(t))
	require.NoError(t, s.Mount(ctx))

	assert.Equal(t, StateAuthenticated, s.State())
	assert.Empty(t, s.Favorites())
	assert.ErrorIs(t, s.LastError(), boom)
}

func TestLogin_PersistsToken(t *testing.T) {
	api := new(MockAPI)
	tokens := NewMemoryTokenStore("")
	api.On("Login", mock.Anything, "test@example.com", "password123").
		Return(&AuthResponse{Token: "new-token", User: testUser}, nil).Once()
	api.On("ListFavorites", mock.Anything, "new-token").Return([]models.Favorite{}, nil).Once()

	s := NewSession(api, tokens, zaptest.NewLogger(t))
	require.NoError(t, s.Login(ctx, "test@example.com", "password123"))

	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, testUser.ID, s.User().ID)
	token, _ := tokens.Load()
	assert.Equal(t, "new-token", token)
	api.AssertExpectations(t)
}

func TestLogin_FailureLeavesUnauthenticated(t *testing.T) {
	api := new(MockAPI)
	invalid := &APIError{Status: 401, Message: "Invalid credentials"}
	api.On("Login", mock.Anything, "test@example.com", "wrong").Return(nil, invalid).Once()

	s := NewSession(api, nil, zaptest.NewLogger(t))
	err := s.Login(ctx, "test@example.com", "wrong")

	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())
}

func TestRegister_SignsIn(t *testing.T) {
	api := new(MockAPI)
	api.On("Register", mock.Anything, "testuser", "test@example.com", "password123").
		Return(&AuthResponse{Token: "tok", User: testUser}, nil).Once()
	api.On("ListFavorites", mock.Anything, "tok").Return([]models.Favorite{}, nil).Once()

	s := NewSession(api, nil, zaptest.NewLogger(t))
	require.NoError(t, s.Register(ctx, "testuser", "test@example.com", "password123"))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestToggleFavorite_RequiresSession(t *testing.T) {
	s := NewSession(new(MockAPI), nil, zaptest.NewLogger(t))

	_, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "US", CountryName: "United States"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestToggleFavorite_AddIsOptimistic(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, []models.Favorite{favorite("FRA", 0)})

	started := make(chan struct{})
	release := make(chan struct{})
	server := favorite("US", -time.Minute)
	api.On("AddFavorite", mock.Anything, "tok", FavoriteInput{CountryCode: "US", CountryName: "United States"}).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&server, nil).Once()

	type result struct {
		isFavorite bool
		err        error
	}
	done := make(chan result, 1)
	go func() {
		fav, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "us", CountryName: "United States"})
		done <- result{fav, err}
	}()

	<-started
	assert.True(t, s.IsFavorite("US"))
	assert.Equal(t, []string{"US", "FRA"}, codes(s.Favorites()))

	_, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "US", CountryName: "United States"})
	assert.ErrorIs(t, err, ErrToggleInProgress)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.isFavorite)
	assert.Equal(t, server.ID, s.Favorites()[0].ID)
	api.AssertExpectations(t)
}

func TestToggleFavorite_AddRollsBack(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, []models.Favorite{favorite("FRA", 0)})
	boom := &APIError{Status: 500, Message: "Server error"}
	api.On("AddFavorite", mock.Anything, "tok", mock.Anything).Return(nil, boom).Once()

	isFavorite, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "US", CountryName: "United States"})

	assert.ErrorIs(t, err, boom)
	assert.False(t, isFavorite)
	assert.False(t, s.IsFavorite("US"))
	assert.Equal(t, []string{"FRA"}, codes(s.Favorites()))
	assert.ErrorIs(t, s.LastError(), boom)
}

func TestToggleFavorite_RemoveRollsBackInPlace(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, []models.Favorite{favorite("FRA", 0), favorite("DEU", time.Hour), favorite("ITA", 2*time.Hour)})
	boom := errors.New("timeout")
	api.On("RemoveFavorite", mock.Anything, "tok", "DEU").Return(boom).Once()

	isFavorite, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "DEU"})

	assert.ErrorIs(t, err, boom)
	assert.True(t, isFavorite)
	assert.Equal(t, []string{"FRA", "DEU", "ITA"}, codes(s.Favorites()))
	assert.Equal(t, "fav-DEU", s.Favorites()[1].ID)
}

func TestToggleFavorite_Remove(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, []models.Favorite{favorite("FRA", 0), favorite("DEU", time.Hour)})
	api.On("RemoveFavorite", mock.Anything, "tok", "FRA").Return(nil).Once()

	isFavorite, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "FRA"})

	require.NoError(t, err)
	assert.False(t, isFavorite)
	assert.Equal(t, []string{"DEU"}, codes(s.Favorites()))
}

func TestToggleFavorite_DifferentCodesRunConcurrently(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	us := favorite("US", 0)
	fr := favorite("FRA", 0)
	api.On("AddFavorite", mock.Anything, "tok", mock.MatchedBy(func(in FavoriteInput) bool { return in.CountryCode == "US" })).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&us, nil).Once()
	api.On("AddFavorite", mock.Anything, "tok", mock.MatchedBy(func(in FavoriteInput) bool { return in.CountryCode == "FRA" })).
		Return(&fr, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "US", CountryName: "United States"})
		done <- err
	}()
	<-started

	_, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "FRA", CountryName: "France"})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"US", "FRA"}, codes(s.Favorites()))
}

func TestLogout_IsTerminalForInflightToggle(t *testing.T) {
	api := new(MockAPI)
	tokens := NewMemoryTokenStore("tok")
	api.On("Me", mock.Anything, "tok").Return(testUser, nil).Once()
	api.On("ListFavorites", mock.Anything, "tok").Return([]models.Favorite{favorite("FRA", 0)}, nil).Once()
	s := NewSession(api, tokens, zaptest.NewLogger(t))
	require.NoError(t, s.Mount(ctx))

	started := make(chan struct{})
	release := make(chan struct{})
	api.On("RemoveFavorite", mock.Anything, "tok", "FRA").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(errors.New("late failure")).Once()
	api.On("Logout", mock.Anything, "tok").Return(nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "FRA"})
		done <- err
	}()
	<-started

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Favorites())

	close(release)
	assert.Error(t, <-done)

	assert.Empty(t, s.Favorites())
	assert.False(t, s.IsFavorite("FRA"))
	token, _ := tokens.Load()
	assert.Empty(t, token)
	api.AssertExpectations(t)
}

func TestLogout_ServerFailureStillClears(t *testing.T) {
	api := new(MockAPI)
	s := mountedSession(t, api, []models.Favorite{favorite("FRA", 0)})
	api.On("Logout", mock.Anything, "tok").Return(errors.New("offline")).Once()

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())
	assert.Empty(t, s.Favorites())
}

func TestFavoriteOp_InverseRestoresList(t *testing.T) {
	base := []models.Favorite{favorite("FRA", 0), favorite("DEU", time.Hour), favorite("ITA", 2*time.Hour)}

	ops := map[string]favoriteOp{
		"add at front":  {kind: opAdd, favorite: favorite("US", -time.Hour), index: 0},
		"add past end":  {kind: opAdd, favorite: favorite("US", -time.Hour), index: 10},
		"remove first":  {kind: opRemove, favorite: base[0], index: 0},
		"remove middle": {kind: opRemove, favorite: base[1], index: 1},
		"remove last":   {kind: opRemove, favorite: base[2], index: 2},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			applied := op.apply(base)
			assert.NotEqual(t, base, applied)
			assert.Equal(t, base, op.inverse().apply(applied))
			assert.Equal(t, op, op.inverse().inverse())
		})
	}
}

func TestFavoriteOp_ApplyDoesNotMutateInput(t *testing.T) {
	base := []models.Favorite{favorite("FRA", 0), favorite("DEU", time.Hour)}
	snapshot := append([]models.Favorite(nil), base...)

	favoriteOp{kind: opRemove, favorite: base[0]}.apply(base)
	favoriteOp{kind: opAdd, favorite: favorite("US", 0)}.apply(base)

	assert.Equal(t, snapshot, base)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
}

func TestToggleFavorite_RefusedUntilFavoritesLoaded(t *testing.T) {
	api := new(MockAPI)
	started := make(chan struct{})
	release := make(chan struct{})
	api.On("Me", mock.Anything, "tok").Return(testUser, nil).Once()
	api.On("ListFavorites", mock.Anything, "tok").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]models.Favorite{favorite("USA", 0)}, nil).Once()

	s := NewSession(api, NewMemoryTokenStore("tok"), zaptest.NewLogger(t))
	mounted := make(chan error, 1)
	go func() { mounted <- s.Mount(ctx) }()
	<-started

	assert.Equal(t, StateAuthenticated, s.State())
	_, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "USA", CountryName: "United States"})
	assert.ErrorIs(t, err, ErrFavoritesLoading)

	close(release)
	require.NoError(t, <-mounted)
	assert.Equal(t, []string{"USA"}, codes(s.Favorites()))
	assert.True(t, s.IsFavorite("USA"))

	// the server copy is known now, so the toggle removes instead of adding
	api.On("RemoveFavorite", mock.Anything, "tok", "USA").Return(nil).Once()
	isFavorite, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "USA"})
	require.NoError(t, err)
	assert.False(t, isFavorite)
	assert.Empty(t, s.Favorites())
	api.AssertNotCalled(t, "AddFavorite", mock.Anything, mock.Anything, mock.Anything)
	api.AssertExpectations(t)
}

func TestToggleFavorite_AllowedAfterFailedLoad(t *testing.T) {
	api := new(MockAPI)
	api.On("Me", mock.Anything, "tok").Return(testUser, nil).Once()
	api.On("ListFavorites", mock.Anything, "tok").Return(nil, errors.New("network down")).Once()
	s := NewSession(api, NewMemoryTokenStore("tok"), zaptest.NewLogger(t))
	require.NoError(t, s.Mount(ctx))

	us := favorite("US", 0)
	api.On("AddFavorite", mock.Anything, "tok", mock.Anything).Return(&us, nil).Once()
	isFavorite, err := s.ToggleFavorite(ctx, FavoriteInput{CountryCode: "US", CountryName: "United States"})
	require.NoError(t, err)
	assert.True(t, isFavorite)
}
