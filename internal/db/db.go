// Package db opens the SQLite handle behind the run journal. The driver is chosen at build
// time: pure-Go ncruces/go-sqlite3 by default, mattn/go-sqlite3 with the sqlite3_cgo tag.
package db

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/assetguard/internal/utils"
)

const MemoryPath = ":memory:"

const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA synchronous=NORMAL;
`

// ErrSchemaTooNew means the file was written by a newer assetguard.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

type schema struct {
	version int
	ddl     string
}

type options struct {
	path        string
	pragmas     string
	maxOpen     int
	maxLifetime time.Duration
	schema      *schema
}

type Option func(*options)

// WithPath sets the database file. MemoryPath keeps everything in memory.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithPragmas replaces the default pragma block.
func WithPragmas(pragmas string) Option {
	return func(o *options) { o.pragmas = pragmas }
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpen = n }
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) { o.maxLifetime = d }
}

// WithSchema applies ddl once per version. The version is kept in PRAGMA user_version, so a
// database already at version is left alone and one above it is refused.
func WithSchema(version int, ddl string) Option {
	return func(o *options) { o.schema = &schema{version: version, ddl: ddl} }
}

// Open connects to SQLite, applies the pragmas and brings the schema up to date.
func Open(opts ...Option) (*sqlx.DB, error) {
	o := &options{path: MemoryPath, pragmas: defaultPragma}
	for _, opt := range opts {
		opt(o)
	}

	dsn := MemoryPath
	if o.path != MemoryPath {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", o.path)
	}

	slog.Debug("db open", "driver", driverID, "path", o.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// an in-memory database exists per connection
	switch {
	case o.path == MemoryPath:
		conn.SetMaxOpenConns(1)
	case o.maxOpen > 0:
		conn.SetMaxOpenConns(o.maxOpen)
	}
	if o.maxLifetime > 0 {
		conn.SetConnMaxLifetime(o.maxLifetime)
	}

	if _, err := conn.Exec(o.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if o.schema != nil {
		if err := migrate(conn, o.schema); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// SchemaVersion reads PRAGMA user_version.
func SchemaVersion(conn *sqlx.DB) (int, error) {
	var version int
	if err := conn.Get(&version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func migrate(conn *sqlx.DB, s *schema) error {
	current, err := SchemaVersion(conn)
	if err != nil {
		return err
	}
	if current > s.version {
		return fmt.Errorf("%w: found %d, want %d", ErrSchemaTooNew, current, s.version)
	}
	if current == s.version {
		return nil
	}

	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin schema migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	// PRAGMA does not take bind parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema migration: %w", err)
	}

	slog.Debug("db schema applied", "from", current, "to", s.version)
	return nil
}

// Driver names the compiled-in SQLite driver.
func Driver() string {
	return driverID
}
