package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/trogers1052/nextworth-marketdata/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect identifies the SQL backend behind a DB
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is the persistent time-series store
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// New connects to PostgreSQL using a connection string
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{conn: conn, dialect: DialectPostgres}, nil
}

// NewSQLite opens (or creates) a SQLite database file. Use ":memory:" for a
// throwaway store.
func NewSQLite(path string) (*DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_time_format=sqlite"
	} else {
		dsn += "?_time_format=sqlite"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &DB{conn: conn, dialect: DialectSQLite}, nil
}

// Open connects to the backend selected in cfg
func Open(cfg config.DatabaseConfig) (*DB, error) {
	switch Dialect(cfg.Driver) {
	case DialectPostgres, "":
		return New(cfg.ConnectionString())
	case DialectSQLite:
		return NewSQLite(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
}

// Dialect returns the backend kind
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping verifies the store is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies all embedded migrations for the current dialect
func (db *DB) Migrate() error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("failed to locate migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var driver database.Driver
	switch db.dialect {
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db.conn, &sqlite.Config{})
	default:
		driver, err = postgres.WithInstance(db.conn, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.dialect), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// rebind rewrites $N placeholders into the form the dialect expects
func (db *DB) rebind(query string) string {
	if db.dialect != DialectSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}
