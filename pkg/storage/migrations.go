package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// Migration represents a reversible schema migration.
// Up and Down are written in the SQL subset shared by PostgreSQL and SQLite.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Schema versions that other packages depend on
const (
	VersionCoreTables = 1
	VersionInvites    = 2
	VersionCanvases   = 3
)

// GetMigrations returns all migrations in version order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     VersionCoreTables,
			Description: "Create users, workspaces, memberships and cards tables",
			Up: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					external_subject TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL,
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					display_name TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

				CREATE TABLE IF NOT EXISTS workspaces (
					id TEXT PRIMARY KEY,
					owner_id TEXT REFERENCES users(id) ON DELETE SET NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_workspaces_owner_id ON workspaces(owner_id);

				CREATE TABLE IF NOT EXISTS workspace_memberships (
					id TEXT PRIMARY KEY,
					workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'editor', 'viewer')),
					permissions TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (workspace_id, user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_workspace_memberships_user_id ON workspace_memberships(user_id);

				CREATE TABLE IF NOT EXISTS cards (
					id TEXT PRIMARY KEY,
					workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					title TEXT NOT NULL DEFAULT '',
					position INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_cards_workspace_id ON cards(workspace_id);
			`,
			Down: `
				DROP TABLE IF EXISTS cards;
				DROP TABLE IF EXISTS workspace_memberships;
				DROP TABLE IF EXISTS workspaces;
				DROP TABLE IF EXISTS users;
			`,
		},
		{
			Version:     VersionInvites,
			Description: "Create workspace_invites table",
			Up: `
				CREATE TABLE IF NOT EXISTS workspace_invites (
					id TEXT PRIMARY KEY,
					workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					invited_by TEXT REFERENCES users(id) ON DELETE SET NULL,
					email TEXT NOT NULL,
					user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
					role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'editor', 'viewer')),
					permissions TEXT NOT NULL DEFAULT '[]',
					token TEXT NOT NULL UNIQUE CHECK (length(token) = 64),
					expires_at TIMESTAMP NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending'
						CHECK (status IN ('pending', 'accepted', 'rejected', 'expired', 'cancelled')),
					accepted_at TIMESTAMP,
					rejected_at TIMESTAMP,
					cancelled_at TIMESTAMP,
					message TEXT,
					metadata TEXT NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					CHECK (expires_at > created_at)
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_workspace_invites_pending_email
					ON workspace_invites(workspace_id, email) WHERE status = 'pending';
				CREATE INDEX IF NOT EXISTS idx_workspace_invites_status_expires
					ON workspace_invites(status, expires_at);
			`,
			Down: `
				DROP TABLE IF EXISTS workspace_invites;
			`,
		},
		{
			// The one-default index must ship in the same step as the table.
			Version:     VersionCanvases,
			Description: "Create canvases table and attach cards to canvases",
			Up: `
				CREATE TABLE IF NOT EXISTS canvases (
					id TEXT PRIMARY KEY,
					workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					position INTEGER NOT NULL DEFAULT 0 CHECK (position >= 0),
					created_by TEXT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (workspace_id, name)
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_canvases_one_default
					ON canvases(workspace_id) WHERE is_default;

				ALTER TABLE cards ADD COLUMN canvas_id TEXT REFERENCES canvases(id) ON DELETE SET NULL;
				CREATE INDEX IF NOT EXISTS idx_cards_canvas_id ON cards(canvas_id);
			`,
			Down: `
				UPDATE cards
				SET workspace_id = (SELECT c.workspace_id FROM canvases c WHERE c.id = cards.canvas_id)
				WHERE canvas_id IS NOT NULL;

				CREATE TABLE cards_pre_canvas (
					id TEXT PRIMARY KEY,
					workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					title TEXT NOT NULL DEFAULT '',
					position INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				INSERT INTO cards_pre_canvas (id, workspace_id, title, position, created_at, updated_at)
					SELECT id, workspace_id, title, position, created_at, updated_at FROM cards;
				DROP TABLE cards;
				ALTER TABLE cards_pre_canvas RENAME TO cards;
				CREATE INDEX IF NOT EXISTS idx_cards_workspace_id ON cards(workspace_id);

				DROP TABLE IF EXISTS canvases;
			`,
		},
	}
}

// Migrator applies and rolls back schema migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	logger     logrus.FieldLogger
}

// NewMigrator creates a migrator for the built-in migrations
func NewMigrator(db *sql.DB, logger logrus.FieldLogger) *Migrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Migrator{db: db, migrations: GetMigrations(), logger: logger}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// Applied returns the applied migration versions in ascending order
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// Up runs every pending migration, each in its own transaction
func (m *Migrator) Up(ctx context.Context) error {
	return m.apply(ctx, math.MaxInt)
}

// UpTo applies pending migrations up to and including version
func (m *Migrator) UpTo(ctx context.Context, version int) error {
	return m.apply(ctx, version)
}

func (m *Migrator) apply(ctx context.Context, limit int) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, migration := range m.migrations {
		if migration.Version > limit {
			break
		}
		if done[migration.Version] {
			continue
		}

		m.logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		err := WithTx(ctx, m.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				migration.Version, migration.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Down rolls back every applied migration newer than target, newest first
func (m *Migrator) Down(ctx context.Context, target int) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.IntSlice(applied)))

	byVersion := make(map[int]Migration, len(m.migrations))
	for _, migration := range m.migrations {
		byVersion[migration.Version] = migration
	}

	for _, version := range applied {
		if version <= target {
			break
		}
		migration, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("no migration registered for applied version %d", version)
		}

		m.logger.WithField("version", version).Infof("Rolling back migration: %s", migration.Description)

		err := WithTx(ctx, m.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
				return fmt.Errorf("failed to roll back migration %d: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
				return fmt.Errorf("failed to unrecord migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
