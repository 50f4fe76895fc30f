// Package app wires configuration, storage, services and HTTP routes into a
// runnable Fiber application.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"explorer/internal/apperror"
	"explorer/internal/config"
	"explorer/internal/handlers"
	"explorer/internal/middleware"
	"explorer/internal/repositories"
	"explorer/internal/services"
	"explorer/pkg/rabbitmq"
	"explorer/pkg/revocation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// App is the assembled API server.
type App struct {
	Fiber     *fiber.App
	Auth      *services.AuthService
	Favorites *services.FavoriteService

	cfg     *config.Config
	log     *zap.Logger
	events  *rabbitmq.Client
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	authOpts []services.AuthOption
}

// WithAuthOptions passes extra options to the AuthService, e.g. a cheaper
// hash cost in tests.
func WithAuthOptions(opts ...services.AuthOption) Option {
	return func(o *options) { o.authOpts = append(o.authOpts, opts...) }
}

type stores struct {
	users     repositories.UserRepository
	favorites repositories.FavoriteRepository
}

// New connects every backend named by cfg and builds the HTTP application.
// On error all connections opened so far are closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (_ *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	var events services.EventPublisher
	if cfg.RabbitMQURL != "" {
		a.events, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log.Named("rabbitmq"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.events.Close)
		events = a.events
	}

	authOpts := []services.AuthOption{
		services.WithTokenDuration(cfg.JWTExpiresIn),
		services.WithAuthLogger(log.Named("auth")),
	}
	if events != nil {
		authOpts = append(authOpts, services.WithAuthEvents(events))
	}
	store, err := a.openRevocation(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		authOpts = append(authOpts, services.WithRevocationStore(store))
	}
	authOpts = append(authOpts, o.authOpts...)

	a.Auth = services.NewAuthService(st.users, cfg.JWTSecret, authOpts...)
	a.Favorites = services.NewFavoriteService(st.favorites, events, log.Named("favorites"))
	a.Fiber = a.routes()

	log.Info("application initialized",
		zap.String("database", cfg.DatabaseDriver),
		zap.String("revocation", cfg.TokenRevocation),
		zap.Bool("events", events != nil),
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	switch a.cfg.DatabaseDriver {
	case "memory":
		return stores{
			users:     repositories.NewMemoryUserRepository(),
			favorites: repositories.NewMemoryFavoriteRepository(),
		}, nil
	case "sqlite", "postgres":
		db, err := repositories.OpenGORM(a.cfg.DatabaseDriver, a.cfg.DatabaseDSN)
		if err != nil {
			return stores{}, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return stores{}, fmt.Errorf("failed to get database handle: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		return stores{
			users:     repositories.NewGORMUserRepository(db),
			favorites: repositories.NewGORMFavoriteRepository(db),
		}, nil
	case "mongo":
		client, db, err := repositories.ConnectMongo(ctx, a.cfg.MongoURI, a.cfg.MongoDatabase)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		return stores{
			users:     repositories.NewMongoUserRepository(db),
			favorites: repositories.NewMongoFavoriteRepository(db),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown database driver %q", a.cfg.DatabaseDriver)
	}
}

func (a *App) openRevocation(ctx context.Context) (revocation.Store, error) {
	switch a.cfg.TokenRevocation {
	case "", "none":
		return nil, nil
	case "memory":
		return revocation.NewMemoryStore(), nil
	case "redis":
		client, err := revocation.Dial(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return revocation.NewRedisStore(client, "explorer:revoked")
	default:
		return nil, fmt.Errorf("unknown token revocation backend %q", a.cfg.TokenRevocation)
	}
}

func (a *App) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "countries-explorer",
		DisableStartupMessage: true,
		ErrorHandler:          a.errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Output: zap.NewStdLog(a.log.Named("http")).Writer(),
		Format: "${status} ${method} ${path} ${latency}",
	}))
	corsCfg := cors.Config{AllowOrigins: a.cfg.ClientURL}
	if a.cfg.ClientURL != "" && a.cfg.ClientURL != "*" {
		corsCfg.AllowCredentials = true
	}
	app.Use(cors.New(corsCfg))

	api := app.Group(a.cfg.APIPrefix)
	api.Get("/health", handlers.HandleHealth)

	authRequired := middleware.AuthRequired(a.Auth, a.log.Named("session"))
	cookie := handlers.CookieOptions{Secure: a.cfg.CookieSecure, SameSite: a.cfg.CookieSameSite}

	handlers.NewAuthHandler(a.Auth, cookie, a.log).RegisterRoutes(api, authRequired)
	handlers.NewUserHandler(a.Auth, a.log).RegisterRoutes(api, authRequired)
	handlers.NewFavoriteHandler(a.Favorites, a.log).RegisterRoutes(api, authRequired)

	return app
}

// errorHandler answers errors escaping the handlers with the common envelope.
func (a *App) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
	}
	a.log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": apperror.ServerMessage})
}

// Events returns the RabbitMQ client, or nil when events are disabled.
func (a *App) Events() *rabbitmq.Client {
	return a.events
}

// Listen serves HTTP on the configured port until Shutdown.
func (a *App) Listen() error {
	a.log.Info("starting server", zap.String("addr", a.cfg.AppPort))
	return a.Fiber.Listen(a.cfg.AppPort)
}

// Shutdown stops the HTTP server, waiting up to timeout for open requests.
func (a *App) Shutdown(timeout time.Duration) error {
	return a.Fiber.ShutdownWithTimeout(timeout)
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
