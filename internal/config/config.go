// Package config loads settings from an optional config.yaml, a .env file and the
// process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName  string `mapstructure:"app_name"`
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Seed     SeedConfig     `mapstructure:"seed"`

	AlertBuffer      int    `mapstructure:"alert_buffer"`
	CORSAllowOrigins string `mapstructure:"cors_allow_origins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | sqlite
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
	LogSQL   bool   `mapstructure:"log_sql"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	StayTTL       time.Duration `mapstructure:"stay_ttl"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type LedgerConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type SeedConfig struct {
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Driver == "sqlite" {
		return "stock-ledger.db"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone,
	)
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "Stock Ledger v1.0")
	v.SetDefault("port", "3000")
	v.SetDefault("log_level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "stock_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.log_sql", false)

	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.stay_ttl", 30*24*time.Hour)
	v.SetDefault("session.purge_interval", 5*time.Minute)

	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.retry_backoff", 20*time.Millisecond)

	v.SetDefault("seed.admin_username", "admin")
	v.SetDefault("alert_buffer", 256)
	v.SetDefault("cors_allow_origins", "*")
}

var envBindings = map[string]string{
	"app_name":               "APP_NAME",
	"port":                   "PORT",
	"log_level":              "LOG_LEVEL",
	"database.driver":        "DATABASE_DRIVER",
	"database.url":           "DATABASE_URL",
	"database.host":          "DB_HOST",
	"database.port":          "DB_PORT",
	"database.user":          "DB_USER",
	"database.password":      "DB_PASSWORD",
	"database.name":          "DB_NAME",
	"database.sslmode":       "DB_SSLMODE",
	"database.timezone":      "DB_TIMEZONE",
	"database.log_sql":       "DB_LOG_SQL",
	"session.idle_ttl":       "SESSION_IDLE_TTL",
	"session.stay_ttl":       "SESSION_STAY_TTL",
	"session.purge_interval": "SESSION_PURGE_INTERVAL",
	"ledger.max_retries":     "LEDGER_MAX_RETRIES",
	"ledger.retry_backoff":   "LEDGER_RETRY_BACKOFF",
	"seed.admin_username":    "SEED_ADMIN_USERNAME",
	"seed.admin_password":    "SEED_ADMIN_PASSWORD",
	"alert_buffer":           "ALERT_BUFFER",
	"cors_allow_origins":     "CORS_ALLOW_ORIGINS",
}

// Load reads .env (if present), config.yaml (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config.yaml: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config error: unsupported database driver %q", c.Database.Driver)
	}
	if c.Session.IdleTTL <= 0 || c.Session.StayTTL <= 0 {
		return errors.New("config error: session TTLs must be positive")
	}
	if c.Session.StayTTL < c.Session.IdleTTL {
		return errors.New("config error: SESSION_STAY_TTL must not be shorter than SESSION_IDLE_TTL")
	}
	if c.Session.PurgeInterval <= 0 {
		return errors.New("config error: SESSION_PURGE_INTERVAL must be positive")
	}
	if c.Ledger.MaxRetries < 1 {
		return errors.New("config error: LEDGER_MAX_RETRIES must be at least 1")
	}
	return nil
}
