package store

import (
	"context"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the schema up to date using the embedded migrations for the
// store's dialect.
func (s *Store) Migrate(ctx context.Context) (err error) {
	ctx, done := s.observe(ctx, "Migrate")
	defer func() { done(err) }()

	dialect := "postgres"
	var driver database.Driver
	switch s.driver {
	case DriverSQLite:
		dialect = "sqlite3"
		driver, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	default:
		driver, err = migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	}
	if err != nil {
		return errors.Wrapf(err, "error creating %s migration driver", dialect)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return errors.Wrap(err, "error opening embedded migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return errors.Wrap(err, "error creating migration instance")
	}

	// The database handle is shared with the store, so m is not closed here.
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.obs.logger.InfoContext(ctx, "migration state is up to date")
			return nil
		}
		return errors.Wrap(err, "error running migrations")
	}

	version, _, _ := m.Version()
	s.obs.logger.InfoContext(ctx, "ran migrations successfully", "version", version)
	return nil
}
