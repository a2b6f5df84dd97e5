package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"warehouse/internal/model"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the service.
type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	GinMode string `envconfig:"GIN_MODE" default:"debug"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName      string `envconfig:"DB_NAME" default:"postgres"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret   string   `envconfig:"JWT_SECRET" default:"default_secret_key_please_change"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`

	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"15s"`
	ListFallbackCap int           `envconfig:"LIST_FALLBACK_CAP" default:"500"`
	ListMaxPageSize int           `envconfig:"LIST_MAX_PAGE_SIZE" default:"100"`

	// Kinds that count as COMPLETE once goods have moved, e.g. "EXPORT".
	CompleteOnMovementKinds []string `envconfig:"COMPLETE_ON_MOVEMENT_KINDS"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads configs/.env when present, then the process environment.
func Load() (*Config, error) {
	// missing file is fine, real deployments inject env directly
	_ = godotenv.Load("configs/.env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListFallbackCap <= 0 {
		return errors.New("LIST_FALLBACK_CAP must be positive")
	}
	if c.ListMaxPageSize <= 0 {
		return errors.New("LIST_MAX_PAGE_SIZE must be positive")
	}
	if _, err := c.CompletionPolicy(); err != nil {
		return err
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise builds one from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// CompletionPolicy builds the per-kind completion rule.
func (c *Config) CompletionPolicy() (model.CompletionPolicy, error) {
	kinds := make([]model.InvoiceKind, 0, len(c.CompleteOnMovementKinds))
	for _, raw := range c.CompleteOnMovementKinds {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		kind, ok := model.ParseKind(raw)
		if !ok {
			return model.CompletionPolicy{}, fmt.Errorf("COMPLETE_ON_MOVEMENT_KINDS: unknown kind %q", raw)
		}
		kinds = append(kinds, kind)
	}
	return model.NewCompletionPolicy(kinds...), nil
}
