package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

const (
	defaultPort   = "8080"
	defaultDBPath = "./data/library.db"
)

type Config struct {
	Port          string
	Driver        string
	DSN           string
	LogLevel      slog.Level
	LogFormat     string
	SessionTTL    time.Duration
	SecureCookies bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SlowQuery     time.Duration
}

// Load reads the configuration from the environment. DATABASE_URL takes
// precedence over DB_PATH, which only applies to SQLite.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         defaultPort,
		Driver:       store.DriverSQLite,
		DSN:          defaultDBPath,
		LogLevel:     slog.LevelInfo,
		LogFormat:    "text",
		SessionTTL:   14 * 24 * time.Hour,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		SlowQuery:    200 * time.Millisecond,
	}

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("DB_DRIVER"); v != "" {
		cfg.Driver = strings.ToLower(v)
	}
	switch cfg.Driver {
	case store.DriverSQLite, store.DriverPostgres, store.DriverPgx:
	default:
		return Config{}, errors.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if v := getenv("DB_PATH"); v != "" {
		cfg.DSN = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DSN = v
	} else if cfg.Driver != store.DriverSQLite {
		return Config{}, errors.New("DATABASE_URL is required for postgres drivers")
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, errors.Wrap(err, "invalid LOG_LEVEL")
		}
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
		if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
			return Config{}, errors.Errorf("invalid LOG_FORMAT %q", v)
		}
	}

	var err error
	if cfg.SessionTTL, err = duration(getenv, "SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = duration(getenv, "READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = duration(getenv, "WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SlowQuery, err = duration(getenv, "SLOW_QUERY_THRESHOLD", cfg.SlowQuery); err != nil {
		return Config{}, err
	}
	if v := getenv("SECURE_COOKIES"); v != "" {
		if cfg.SecureCookies, err = strconv.ParseBool(v); err != nil {
			return Config{}, errors.Wrap(err, "invalid SECURE_COOKIES")
		}
	}
	return cfg, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive", key)
	}
	return d, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
