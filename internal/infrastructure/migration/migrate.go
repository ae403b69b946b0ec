package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// schemaMigrationsTable is separate from the default so the connector schema
// can share a database with other services.
const schemaMigrationsTable = "connector_schema_migrations"

// Migrator moves the connector schema between versions. Closing it also
// closes the *sql.DB it was built on.
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New reads migrations from a directory on disk.
func New(db *sql.DB, dir string, log *zap.Logger) (*Migrator, error) {
	return open(db, log, func(driver database.Driver) (*migrate.Migrate, error) {
		return migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	})
}

// NewFromFS reads migrations from fsys, usually the embedded migrations.FS.
func NewFromFS(db *sql.DB, fsys fs.FS, log *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	mg, err := open(db, log, func(driver database.Driver) (*migrate.Migrate, error) {
		return migrate.NewWithInstance("iofs", src, "postgres", driver)
	})
	if err != nil {
		_ = src.Close()
	}
	return mg, err
}

func open(db *sql.DB, log *zap.Logger, build func(database.Driver) (*migrate.Migrate, error)) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: schemaMigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := build(driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// run executes one migrate operation; ErrNoChange counts as success.
func (mg *Migrator) run(op string, fn func() error, fields ...zap.Field) error {
	mg.log.Info("Schema migration starting", append(fields, zap.String("op", op))...)
	err := fn()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mg.log.Info("Schema already at target", zap.String("op", op))
		return nil
	case err != nil:
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	mg.log.Info("Schema migration finished", zap.String("op", op), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error { return mg.run("up", mg.m.Up) }

// Down reverts every applied migration.
func (mg *Migrator) Down() error { return mg.run("down", mg.m.Down) }

// Steps moves n migrations forward, or back when n is negative.
func (mg *Migrator) Steps(n int) error {
	return mg.run("steps", func() error { return mg.m.Steps(n) }, zap.Int("steps", n))
}

// GoTo migrates up or down to version.
func (mg *Migrator) GoTo(version uint) error {
	return mg.run("goto", func() error { return mg.m.Migrate(version) }, zap.Uint("target", version))
}

// Version reports the applied version, 0 when nothing has run.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force records version as applied without running it. It exists to clear
// the dirty flag after a failed migration.
func (mg *Migrator) Force(version int) error {
	mg.log.Warn("Forcing schema version", zap.Int("version", version))
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop deletes every object in the schema.
func (mg *Migrator) Drop() error {
	mg.log.Warn("Dropping connector schema")
	if err := mg.m.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}
