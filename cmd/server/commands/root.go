package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/config"
	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

var (
	// Global flags
	dbDriver string
	dbURL    string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Library and blog API server",
	Long: `Serves the books, authors and posts API together with user accounts.

Configuration comes from the environment (PORT, DB_DRIVER, DATABASE_URL,
DB_PATH, LOG_LEVEL, LOG_FORMAT, SESSION_TTL, SECURE_COOKIES); flags override it.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "Database driver: sqlite3, postgres or pgx")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database DSN or SQLite file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig() (config.Config, *slog.Logger, error) {
	if dbDriver != "" {
		_ = os.Setenv("DB_DRIVER", dbDriver)
	}
	if dbURL != "" {
		_ = os.Setenv("DATABASE_URL", dbURL)
	}
	if logLevel != "" {
		_ = os.Setenv("LOG_LEVEL", logLevel)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// openStore connects and migrates the configured database.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	if cfg.Driver == store.DriverSQLite && cfg.DSN != ":memory:" {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "error creating database directory")
			}
		}
	}
	st, err := store.Open(ctx, cfg.Driver, cfg.DSN,
		store.WithLogger(logger),
		store.WithSlowThreshold(cfg.SlowQuery),
	)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
