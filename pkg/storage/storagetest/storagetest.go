// Package storagetest provides database fixtures for tests.
package storagetest

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/storage"
)

// NewSQLite returns a migrated in-memory SQLite database that is closed when the test ends
func NewSQLite(t *testing.T) *sql.DB {
	t.Helper()
	return NewSQLiteAt(t, storage.VersionCanvases)
}

// NewSQLiteAt returns an in-memory SQLite database migrated up to version
func NewSQLiteAt(t *testing.T, version int) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Config{
		Driver:  storage.DriverSQLite,
		URL:     "file:" + uuid.NewString() + "?mode=memory",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.NewMigrator(db, QuietLogger()).UpTo(ctx, version); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// QuietLogger returns a logger that discards output
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// RequirePostgres connects to TEST_POSTGRES_URL or skips the test when it is not set.
func RequirePostgres(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_URL environment variable not set (database not available)")
	}

	db, err := storage.Open(context.Background(), storage.Config{
		Driver:   storage.DriverPostgres,
		URL:      dbURL,
		MaxConns: 10,
		MinConns: 2,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Skipf("Database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Fixture rows shared by tests across packages

// InsertUser inserts a user with a verified email and returns its id
func InsertUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	id := uuid.NewString()
	now := storage.Timestamp(time.Now())
	_, err := db.Exec(`
		INSERT INTO users (id, external_subject, email, email_verified, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $5)
	`, id, "sub-"+id, email, email, now)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	return id
}

// InsertWorkspace inserts a bare workspace row (no canvas, no membership)
func InsertWorkspace(t *testing.T, db *sql.DB, ownerID, name string) string {
	t.Helper()
	id := uuid.NewString()
	now := storage.Timestamp(time.Now())
	_, err := db.Exec(`
		INSERT INTO workspaces (id, owner_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, id, ownerID, name, now)
	if err != nil {
		t.Fatalf("Failed to insert workspace: %v", err)
	}
	return id
}

// InsertCard inserts a card attached only to its workspace
func InsertCard(t *testing.T, db *sql.DB, workspaceID, title string) string {
	t.Helper()
	id := uuid.NewString()
	now := storage.Timestamp(time.Now())
	_, err := db.Exec(`
		INSERT INTO cards (id, workspace_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, id, workspaceID, title, now)
	if err != nil {
		t.Fatalf("Failed to insert card: %v", err)
	}
	return id
}

// InsertMembership inserts a membership row without overrides
func InsertMembership(t *testing.T, db *sql.DB, workspaceID, userID, role string) {
	t.Helper()
	now := storage.Timestamp(time.Now())
	_, err := db.Exec(`
		INSERT INTO workspace_memberships (id, workspace_id, user_id, role, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '[]', $5, $5)
	`, uuid.NewString(), workspaceID, userID, role, now)
	if err != nil {
		t.Fatalf("Failed to insert membership: %v", err)
	}
}
