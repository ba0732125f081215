// Package migrations holds the metadata store schema as embedded
// golang-migrate files and reports where a database stands against them.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// RequiredTables are the tables the service reads and writes.
var RequiredTables = []string{"rooms", "files", "gc_sweeps"}

var (
	ErrNoSchema         = errors.New("metadata store has no schema")
	ErrSchemaDirty      = errors.New("metadata store schema is dirty")
	ErrSchemaBehind     = errors.New("metadata store schema is behind this binary")
	ErrSchemaAhead      = errors.New("metadata store schema is newer than this binary")
	ErrSchemaIncomplete = errors.New("metadata store schema is missing tables")
)

// Status describes a database's schema against the embedded migrations.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
	// Missing lists RequiredTables absent from the database.
	Missing []string
}

// Current reports whether the schema can be used as is.
func (s *Status) Current() bool {
	return s.Err() == nil
}

// Err explains why the schema cannot be used, or returns nil.
func (s *Status) Err() error {
	switch {
	case s.Version == 0 && !s.Dirty:
		return fmt.Errorf("%w, run siashare migrate", ErrNoSchema)
	case s.Dirty:
		return fmt.Errorf("%w at version %d, a previous migration failed", ErrSchemaDirty, s.Version)
	case s.Version < s.Latest:
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaBehind, s.Version, s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("%w: version %d, binary knows %d", ErrSchemaAhead, s.Version, s.Latest)
	case len(s.Missing) > 0:
		return fmt.Errorf("%w: %s", ErrSchemaIncomplete, strings.Join(s.Missing, ", "))
	}
	return nil
}

// Inspect reads the schema version and checks for the required tables.
func Inspect(db *sql.DB) (*Status, error) {
	latest, err := Latest()
	if err != nil {
		return nil, err
	}
	m, err := newMigrate(db)
	if err != nil {
		return nil, err
	}
	// m is not closed: that would close db, which the caller owns.

	st := &Status{Latest: latest}
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("reading schema version: %w", err)
	default:
		st.Version, st.Dirty = version, dirty
	}

	for _, table := range RequiredTables {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("looking up table %s: %w", table, err)
		}
		if n == 0 {
			st.Missing = append(st.Missing, table)
		}
	}
	return st, nil
}

// Check returns nil when the schema is current, or an error wrapping one of
// the ErrSchema sentinels.
func Check(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// Up applies pending migrations and returns the versions before and after.
func Up(db *sql.DB) (from, to uint, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, 0, err
	}
	from, _, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, 0, fmt.Errorf("reading schema version: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, from, fmt.Errorf("migrating from version %d: %w", from, err)
	}
	to, _, err = m.Version()
	if err != nil {
		return from, 0, fmt.Errorf("reading schema version: %w", err)
	}
	return from, to, nil
}

// Latest returns the highest version among the embedded migrations.
func Latest() (uint, error) {
	entries, err := fs.ReadDir(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		mig, err := source.Parse(e.Name())
		if err != nil {
			return 0, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		latest = max(latest, mig.Version)
	}
	return latest, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	return m, nil
}
