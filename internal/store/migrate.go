package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jobdeck/swipequeue/internal/config"
	"github.com/jobdeck/swipequeue/migrations"
)

// RunMigrations applies all pending migrations for the configured driver.
// Each driver keeps its own SQL dialect in an embedded subdirectory.
func RunMigrations(cfg config.DatabaseConfig) error {
	var databaseURL string
	switch cfg.Driver {
	case config.DriverPostgres:
		databaseURL = cfg.URL
	case config.DriverSQLite:
		databaseURL = fmt.Sprintf("sqlite://%s", cfg.Path)
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	src, err := iofs.New(migrations.FS, cfg.Driver)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
