package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database connection configuration
type Config struct {
	Driver      string
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultConfig returns a configuration suitable for local development
func DefaultConfig() Config {
	return Config{
		Driver:      DriverPostgres,
		URL:         "postgres://localhost/atrium?sslmode=disable",
		MaxConns:    20,
		MinConns:    5,
		Timeout:     5 * time.Second,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}
}

// Validate checks the configuration for obvious mistakes
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.MaxConns < 0 || c.MinConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	return nil
}

// Open opens and pings a database connection pool.
//
// SQLite allows a single writer, so its pool is capped at one connection; this also keeps
// in-memory databases alive across calls.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := cfg.URL
	if cfg.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MinConns)
		db.SetConnMaxLifetime(cfg.MaxLifetime)
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off by default
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WithTx runs fn inside a transaction, committing when fn returns nil
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", TranslateError(err))
	}
	return nil
}

// RowsAffected returns the affected row count, translating driver errors
func RowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Timestamp normalizes t for storage: UTC at microsecond precision, which both engines
// round-trip exactly and which sorts correctly as SQLite text.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
