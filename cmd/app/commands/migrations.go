package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/eventrelay/internal/database"
)

// migrationsDirs maps a database driver to its migrations directory.
var migrationsDirs = map[string]string{
	"postgres": "migrations/postgresql",
	"mysql":    "migrations/mysql",
	"sqlite":   "migrations/sqlite",
}

// RunMigrations applies all pending migrations of the configured driver. The migrations
// directory is resolved relative to the working directory. Returns nil if there is
// nothing to apply.
func RunMigrations(logger *slog.Logger, driver, connectionString string) error {
	migrationsDir, ok := migrationsDirs[driver]
	if !ok {
		return fmt.Errorf("unsupported database driver: %s", driver)
	}

	logger.Info("running database migrations",
		slog.String("driver", driver),
		slog.String("migrations_dir", migrationsDir),
	)

	db, err := database.Connect(database.Config{
		Driver:             driver,
		ConnectionString:   connectionString,
		MaxOpenConnections: 1,
		MaxIdleConnections: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	databaseDriver, err := migrationDriver(db, driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, driver, databaseDriver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Closing the migrate instance closes db.
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}

func migrationDriver(db *sql.DB, driver string) (migratedb.Driver, error) {
	switch driver {
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{})
	default:
		return sqlite.WithInstance(db, &sqlite.Config{})
	}
}
