package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

func TestMigrator_UpIsIdempotent(t *testing.T) {
	db := storagetest.NewSQLite(t)
	ctx := context.Background()
	m := storage.NewMigrator(db, storagetest.QuietLogger())

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx))

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{storage.VersionCoreTables, storage.VersionInvites, storage.VersionCanvases}, applied)
}

func TestMigrator_DownRestoresCardWorkspace(t *testing.T) {
	db := storagetest.NewSQLite(t)
	ctx := context.Background()
	m := storage.NewMigrator(db, storagetest.QuietLogger())

	owner := storagetest.InsertUser(t, db, "owner@example.com")
	ws1 := storagetest.InsertWorkspace(t, db, owner, "One")
	ws2 := storagetest.InsertWorkspace(t, db, owner, "Two")
	card := storagetest.InsertCard(t, db, ws1, "Roadmap")

	// Move the card to a canvas that belongs to the other workspace; rolling back must
	// derive the workspace from the canvas.
	canvasID := uuid.NewString()
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO canvases (id, workspace_id, name, is_default, position, created_by, created_at, updated_at)
		VALUES ($1, $2, 'Main Canvas', TRUE, 0, $3, $4, $4)
	`, canvasID, ws2, owner, now)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE cards SET canvas_id = $1 WHERE id = $2`, canvasID, card)
	require.NoError(t, err)

	require.NoError(t, m.Down(ctx, storage.VersionInvites))

	var workspaceID, title string
	require.NoError(t, db.QueryRow(`SELECT workspace_id, title FROM cards WHERE id = $1`, card).
		Scan(&workspaceID, &title))
	assert.Equal(t, ws2, workspaceID)
	assert.Equal(t, "Roadmap", title)

	_, err = db.Exec(`SELECT canvas_id FROM cards`)
	assert.Error(t, err, "canvas_id column should be gone")
	_, err = db.Exec(`SELECT id FROM canvases`)
	assert.Error(t, err, "canvases table should be gone")

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{storage.VersionCoreTables, storage.VersionInvites}, applied)

	// And forward again.
	require.NoError(t, m.Up(ctx))
	var canvasCol *string
	require.NoError(t, db.QueryRow(`SELECT canvas_id FROM cards WHERE id = $1`, card).Scan(&canvasCol))
	assert.Nil(t, canvasCol)
}

func TestMigrator_OneDefaultIndexShipsWithTable(t *testing.T) {
	db := storagetest.NewSQLite(t)

	owner := storagetest.InsertUser(t, db, "owner@example.com")
	ws := storagetest.InsertWorkspace(t, db, owner, "One")
	now := time.Now().UTC()

	insert := func(name string, isDefault bool) error {
		_, err := db.Exec(`
			INSERT INTO canvases (id, workspace_id, name, is_default, position, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
		`, uuid.NewString(), ws, name, isDefault, owner, now)
		return storage.TranslateError(err)
	}

	require.NoError(t, insert("A", true))
	require.NoError(t, insert("B", false))

	err := insert("C", true)
	require.Error(t, err)
	ce, ok := storage.AsConstraintError(err)
	require.True(t, ok)
	assert.False(t, ce.Involves("name"))
}

func TestMigrator_InviteConstraints(t *testing.T) {
	db := storagetest.NewSQLite(t)

	owner := storagetest.InsertUser(t, db, "owner@example.com")
	ws := storagetest.InsertWorkspace(t, db, owner, "One")
	now := time.Now().UTC()

	insert := func(email, token, status string, expires time.Time) error {
		_, err := db.Exec(`
			INSERT INTO workspace_invites (id, workspace_id, invited_by, email, role, token, expires_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'editor', $5, $6, $7, $8, $8)
		`, uuid.NewString(), ws, owner, email, token, expires, status, now)
		return storage.TranslateError(err)
	}
	token := func(c byte) string {
		b := make([]byte, 64)
		for i := range b {
			b[i] = c
		}
		return string(b)
	}

	require.NoError(t, insert("a@x.com", token('a'), "pending", now.Add(time.Hour)))
	require.NoError(t, insert("a@x.com", token('b'), "accepted", now.Add(time.Hour)), "terminal invites do not count")

	err := insert("a@x.com", token('c'), "pending", now.Add(time.Hour))
	ce, ok := storage.AsConstraintError(err)
	require.True(t, ok)
	assert.True(t, ce.Involves("email"))

	err = insert("b@x.com", token('a'), "pending", now.Add(time.Hour))
	ce, ok = storage.AsConstraintError(err)
	require.True(t, ok)
	assert.True(t, ce.Involves("token"))

	err = insert("c@x.com", token('d'), "pending", now.Add(-time.Second))
	ce, ok = storage.AsConstraintError(err)
	require.True(t, ok, "expires_at must be after created_at")
	assert.ErrorContains(t, ce, "validation")

	err = insert("d@x.com", "short", "pending", now.Add(time.Hour))
	_, ok = storage.AsConstraintError(err)
	assert.True(t, ok, "token must be fixed length")
}
