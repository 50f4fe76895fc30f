// Package config loads service settings from the environment and an optional
// config file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devJWTSecret = "dev_jwt_secret_change_me"

// Config holds every runtime setting of the API server.
type Config struct {
	AppPort   string
	AppMode   string
	LogLevel  string
	APIPrefix string
	ClientURL string

	DatabaseDriver string
	DatabaseDSN    string
	MongoURI       string
	MongoDatabase  string

	JWTSecret    string
	JWTExpiresIn time.Duration

	CookieSecure   bool
	CookieSameSite string

	RabbitMQURL string

	TokenRevocation string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.AppMode == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":5000")
	v.SetDefault("APP_MODE", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("CLIENT_URL", "http://localhost:3000")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "file:explorer.db?cache=shared")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "countries-explorer")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "720h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_SAME_SITE", "Lax")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("TOKEN_REVOCATION", "none")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// is set, from that file. Environment variables take precedence.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration through the given viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		AppPort:         v.GetString("APP_PORT"),
		AppMode:         strings.ToLower(v.GetString("APP_MODE")),
		LogLevel:        v.GetString("LOG_LEVEL"),
		APIPrefix:       v.GetString("API_PREFIX"),
		ClientURL:       v.GetString("CLIENT_URL"),
		DatabaseDriver:  strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:     v.GetString("DATABASE_DSN"),
		MongoURI:        v.GetString("MONGODB_URI"),
		MongoDatabase:   v.GetString("MONGODB_DATABASE"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTExpiresIn:    v.GetDuration("JWT_EXPIRES_IN"),
		CookieSecure:    v.GetBool("COOKIE_SECURE"),
		CookieSameSite:  v.GetString("COOKIE_SAME_SITE"),
		RabbitMQURL:     v.GetString("RABBITMQ_URL"),
		TokenRevocation: strings.ToLower(v.GetString("TOKEN_REVOCATION")),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		RedisDB:         v.GetInt("REDIS_DB"),
	}

	if cfg.JWTSecret == "" && !cfg.Production() {
		cfg.JWTSecret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.JWTExpiresIn <= 0 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRES_IN must be positive, got %s", c.JWTExpiresIn))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres", "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	switch c.TokenRevocation {
	case "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_REVOCATION %q", c.TokenRevocation))
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX must start with '/', got %q", c.APIPrefix))
	}
	return errors.Join(errs...)
}
