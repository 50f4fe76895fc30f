package repositories_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"explorer/internal/models"
	"explorer/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	users     repositories.UserRepository
	favorites repositories.FavoriteRepository
}

// backends returns every store implementation available in this environment.
func backends(t *testing.T) map[string]func(t *testing.T) backend {
	t.Helper()
	out := map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			return backend{
				users:     repositories.NewMemoryUserRepository(),
				favorites: repositories.NewMemoryFavoriteRepository(),
			}
		},
		"sqlite": func(t *testing.T) backend {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			db, err := repositories.OpenGORM("sqlite", dsn)
			require.NoError(t, err)
			return backend{
				users:     repositories.NewGORMUserRepository(db),
				favorites: repositories.NewGORMFavoriteRepository(db),
			}
		},
	}

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		out["mongo"] = func(t *testing.T) backend {
			ctx := context.Background()
			client, db, err := repositories.ConnectMongo(ctx, uri, "explorer_test_"+uuid.NewString()[:8])
			require.NoError(t, err)
			t.Cleanup(func() {
				_ = db.Drop(ctx)
				_ = client.Disconnect(ctx)
			})
			return backend{
				users:     repositories.NewMongoUserRepository(db),
				favorites: repositories.NewMongoFavoriteRepository(db),
			}
		}
	}
	return out
}

func TestUserRepositories(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t).users

			user := &models.User{Username: "testuser", Email: "test@example.com", Password: "hash"}
			require.NoError(t, repo.Create(ctx, user))
			assert.NotEmpty(t, user.ID)

			byEmail, err := repo.GetByEmail(ctx, "test@example.com")
			require.NoError(t, err)
			assert.Equal(t, user.ID, byEmail.ID)
			assert.Equal(t, "hash", byEmail.Password)

			byName, err := repo.GetByUsername(ctx, "testuser")
			require.NoError(t, err)
			assert.Equal(t, user.ID, byName.ID)

			_, err = repo.GetByID(ctx, "missing")
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			// Same email, different username: unique constraint backstop.
			dup := &models.User{Username: "other", Email: "test@example.com", Password: "hash"}
			assert.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrDuplicate)

			found, err := repo.FindByEmailOrUsername(ctx, "nobody@example.com", "testuser", "")
			require.NoError(t, err)
			assert.Equal(t, user.ID, found.ID)

			_, err = repo.FindByEmailOrUsername(ctx, "test@example.com", "testuser", user.ID)
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			_, err = repo.FindByEmailOrUsername(ctx, "", "", "")
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			second := &models.User{Username: "second", Email: "second@example.com", Password: "hash"}
			require.NoError(t, repo.Create(ctx, second))

			second.Email = "test@example.com"
			assert.ErrorIs(t, repo.Update(ctx, second), repositories.ErrDuplicate)

			second.Email = "renamed@example.com"
			second.Password = "newhash"
			require.NoError(t, repo.Update(ctx, second))
			reloaded, err := repo.GetByID(ctx, second.ID)
			require.NoError(t, err)
			assert.Equal(t, "renamed@example.com", reloaded.Email)
			assert.Equal(t, "newhash", reloaded.Password)

			ghost := &models.User{ID: "ghost", Username: "ghost", Email: "ghost@example.com"}
			assert.ErrorIs(t, repo.Update(ctx, ghost), repositories.ErrNotFound)
		})
	}
}

func TestFavoriteRepositories(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t).favorites
			base := time.Now().Add(-time.Hour).Truncate(time.Second)

			for i, code := range []string{"FRA", "USA", "JPN"} {
				fav := &models.Favorite{
					UserID:      "user-1",
					CountryCode: code,
					CountryName: "Country " + code,
					CreatedAt:   base.Add(time.Duration(i) * time.Minute),
				}
				require.NoError(t, repo.Create(ctx, fav))
				assert.NotEmpty(t, fav.ID)
			}
			require.NoError(t, repo.Create(ctx, &models.Favorite{UserID: "user-2", CountryCode: "USA", CountryName: "United States", CreatedAt: base}))

			dup := &models.Favorite{UserID: "user-1", CountryCode: "USA", CountryName: "United States", CreatedAt: base}
			assert.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrDuplicate)

			list, err := repo.ListByUser(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "JPN", list[0].CountryCode)
			assert.Equal(t, "USA", list[1].CountryCode)
			assert.Equal(t, "FRA", list[2].CountryCode)

			got, err := repo.Get(ctx, "user-1", "USA")
			require.NoError(t, err)
			assert.Equal(t, "Country USA", got.CountryName)

			require.NoError(t, repo.Delete(ctx, "user-1", "USA"))
			_, err = repo.Get(ctx, "user-1", "USA")
			assert.ErrorIs(t, err, repositories.ErrNotFound)
			assert.ErrorIs(t, repo.Delete(ctx, "user-1", "USA"), repositories.ErrNotFound)

			other, err := repo.ListByUser(ctx, "user-2")
			require.NoError(t, err)
			assert.Len(t, other, 1)

			empty, err := repo.ListByUser(ctx, "nobody")
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)
		})
	}
}
