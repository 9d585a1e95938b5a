package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

func TestCreateWorkspace(t *testing.T) {
	db := storagetest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()
	owner := storagetest.InsertUser(t, db, "owner@example.com")

	var bootstrapped string
	ws, err := store.CreateWorkspace(ctx, owner, "  Research  ", func(ctx context.Context, tx *sql.Tx, ws *Workspace) error {
		bootstrapped = ws.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Research", ws.Name)
	assert.Equal(t, ws.ID, bootstrapped)

	m, err := store.GetMembership(ctx, nil, owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleOwner, m.Role)

	got, err := store.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.OwnerID)
}

func TestCreateWorkspace_BootstrapFailureRollsBack(t *testing.T) {
	db := storagetest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()
	owner := storagetest.InsertUser(t, db, "owner@example.com")

	boom := errors.New("boom")
	_, err := store.CreateWorkspace(ctx, owner, "Doomed", func(context.Context, *sql.Tx, *Workspace) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workspaces`).Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workspace_memberships`).Scan(&count))
	assert.Zero(t, count)
}

func TestCreateWorkspace_Validation(t *testing.T) {
	db := storagetest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()
	owner := storagetest.InsertUser(t, db, "owner@example.com")

	_, err := store.CreateWorkspace(ctx, owner, "   ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = store.CreateWorkspace(ctx, owner, strings.Repeat("x", MaxNameLength+1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = store.CreateWorkspace(ctx, "ghost", "Orphan")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)
}

func TestRenameAndDeleteWorkspace(t *testing.T) {
	db := storagetest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()
	owner := storagetest.InsertUser(t, db, "owner@example.com")

	ws, err := store.CreateWorkspace(ctx, owner, "Old")
	require.NoError(t, err)
	storagetest.InsertCard(t, db, ws.ID, "card")

	renamed, err := store.RenameWorkspace(ctx, ws.ID, "New")
	require.NoError(t, err)
	assert.Equal(t, "New", renamed.Name)

	_, err = store.RenameWorkspace(ctx, "missing", "New")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, store.DeleteWorkspace(ctx, ws.ID))
	assert.ErrorIs(t, store.DeleteWorkspace(ctx, ws.ID), apperrors.ErrNotFound)
	_, err = store.GetWorkspace(ctx, ws.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&count))
	assert.Zero(t, count, "cards cascade with their workspace")
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workspace_memberships`).Scan(&count))
	assert.Zero(t, count)
}
