// Package history persists every background generation attempt to SQLite.
//
// The schema is embedded and migrated on Open. Writes go through an
// AsyncWriter so the generation path never waits on disk; the Recorder
// adapts background.Observer to that writer.
package history

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("history: database is closed")

// ConnectionConfig holds configuration for SQLite connections.
type ConnectionConfig struct {
	Path string
	// BusyTimeout is how long to wait for locks (milliseconds)
	BusyTimeout int
	// MaxOpenConns limits concurrent connections (SQLite handles one writer)
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConnectionConfig returns WAL-friendly defaults for path.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:         path,
		BusyTimeout:  5000,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// Database owns the history connection.
type Database struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates the parent directory if needed, applies pending migrations
// and returns a ready connection in WAL mode.
func Open(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("history: database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("history: failed to create database directory: %w", err)
		}
	}

	if err := migrateUp(path); err != nil {
		return nil, err
	}

	conn, err := newSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, err
	}
	return &Database{db: conn, path: path}, nil
}

// migrateUp runs on its own connection because the migrator closes the
// connection it was given.
func migrateUp(path string) error {
	conn, err := newSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return err
	}

	m, err := newMigrator(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: failed to apply migrations: %w", err)
	}
	return nil
}

func newMigrator(conn *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("history: failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(conn, &sqlite.Config{DatabaseName: "main"})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("history: failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("history: failed to create migrate instance: %w", err)
	}
	return m, nil
}

func newSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("history: failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: failed to ping database: %w", err)
	}

	pragmas := []struct {
		name  string
		query string
	}{
		{"journal_mode", "PRAGMA journal_mode=WAL"},
		{"busy_timeout", fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout)},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.query); err != nil {
			conn.Close()
			return nil, fmt.Errorf("history: failed to set %s pragma: %w", p.name, err)
		}
	}

	conn.SetMaxOpenConns(config.MaxOpenConns)
	conn.SetMaxIdleConns(config.MaxIdleConns)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	var journalMode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		conn.Close()
		return nil, fmt.Errorf("history: WAL mode not enabled, got: %s", journalMode)
	}
	return conn, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Ping verifies the connection is alive.
func (d *Database) Ping() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Ping()
}

// Close closes the connection. Safe to call more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("history: failed to close database: %w", err)
	}
	return nil
}

// conn returns the live connection or ErrClosed. Callers hold d.mu.
func (d *Database) conn() (*sql.DB, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db, nil
}
