package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations for one driver
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator binds the embedded migrations of driver to the open database.
// The migrator shares the pool with db and must not outlive it.
func NewMigrator(db *gorm.DB, driver string) (*Migrator, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.NewDatabaseErrorWithCause("failed to access connection pool", err)
	}

	var (
		instance migratedb.Driver
		dir      string
	)
	switch driver {
	case "sqlite", "":
		dir = "migrations/sqlite"
		instance, err = migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	case "mysql":
		dir = "migrations/mysql"
		instance, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported database driver: %s", driver))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load database driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load migration source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to setup migration: %w", err)
	}

	return &Migrator{m: m}, nil
}

// Up applies every pending migration
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations; zero or less rolls back all of them
func (mg *Migrator) Down(steps int) error {
	var err error
	if steps > 0 {
		err = mg.m.Steps(-steps)
	} else {
		err = mg.m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateUp is the one-shot form used at server start
func MigrateUp(db *gorm.DB, driver string) error {
	mg, err := NewMigrator(db, driver)
	if err != nil {
		return err
	}
	return mg.Up()
}
