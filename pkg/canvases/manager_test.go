package canvases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

func newTestManager(t *testing.T) (*Manager, *sql.DB, string, string) {
	t.Helper()
	db := storagetest.NewSQLite(t)
	owner := storagetest.InsertUser(t, db, "owner@example.com")
	ws := storagetest.InsertWorkspace(t, db, owner, "Team")
	return NewManager(db, storagetest.QuietLogger(), nil), db, owner, ws
}

func countDefaults(t *testing.T, db *sql.DB, workspaceID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM canvases WHERE workspace_id = $1 AND is_default`, workspaceID).Scan(&n))
	return n
}

func TestCreateCanvas(t *testing.T) {
	m, db, owner, ws := newTestManager(t)
	ctx := context.Background()

	first, err := m.CreateCanvas(ctx, ws, "Ideas", owner)
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first canvas of a workspace is the default")
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, owner, first.CreatedBy)

	second, err := m.CreateCanvas(ctx, ws, "Roadmap", owner)
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
	assert.Equal(t, 1, second.Position)

	_, err = m.CreateCanvas(ctx, ws, " Ideas ", owner)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	_, err = m.CreateCanvas(ctx, ws, "", owner)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = m.CreateCanvas(ctx, "missing", "Ghost", owner)
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)

	assert.Equal(t, 1, countDefaults(t, db, ws))

	list, err := m.ListCanvases(ctx, ws)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ideas", list[0].Name)
	assert.Equal(t, "Roadmap", list[1].Name)
}

func TestBootstrapThroughCreateWorkspace(t *testing.T) {
	db := storagetest.NewSQLite(t)
	owner := storagetest.InsertUser(t, db, "owner@example.com")
	m := NewManager(db, storagetest.QuietLogger(), nil)
	ctx := context.Background()

	ws, err := workspaces.NewStore(db).CreateWorkspace(ctx, owner, "Fresh", m.Bootstrap)
	require.NoError(t, err)

	def, err := m.GetDefaultCanvas(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultCanvasName, def.Name)
	assert.Equal(t, owner, def.CreatedBy)
}

func TestSetDefaultCanvas(t *testing.T) {
	m, db, owner, ws := newTestManager(t)
	ctx := context.Background()

	c1, err := m.CreateCanvas(ctx, ws, "C1", owner)
	require.NoError(t, err)
	c2, err := m.CreateCanvas(ctx, ws, "C2", owner)
	require.NoError(t, err)

	got, err := m.SetDefaultCanvas(ctx, ws, c2.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	reloaded1, err := m.GetCanvas(ctx, ws, c1.ID)
	require.NoError(t, err)
	assert.False(t, reloaded1.IsDefault)
	reloaded2, err := m.GetCanvas(ctx, ws, c2.ID)
	require.NoError(t, err)
	assert.True(t, reloaded2.IsDefault)
	assert.Equal(t, 1, countDefaults(t, db, ws))

	again, err := m.SetDefaultCanvas(ctx, ws, c2.ID)
	require.NoError(t, err, "setting the current default is idempotent")
	assert.True(t, again.IsDefault)

	_, err = m.SetDefaultCanvas(ctx, ws, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	other := storagetest.InsertWorkspace(t, db, owner, "Other")
	_, err = m.SetDefaultCanvas(ctx, other, c1.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "canvas ids are scoped to their workspace")
}

func TestSetDefaultCanvas_ConcurrentCallers(t *testing.T) {
	m, db, owner, ws := newTestManager(t)
	ctx := context.Background()

	var targets []string
	for i := 0; i < 10; i++ {
		c, err := m.CreateCanvas(ctx, ws, fmt.Sprintf("Canvas %d", i), owner)
		require.NoError(t, err)
		targets = append(targets, c.ID)
	}

	var g errgroup.Group
	results := make([]error, 100)
	for i := 0; i < 100; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = m.SetDefaultCanvas(ctx, ws, targets[i%len(targets)])
			return nil
		})
		g.Go(func() error {
			var n int
			if err := db.QueryRow(`SELECT COUNT(*) FROM canvases WHERE workspace_id = $1 AND is_default`, ws).Scan(&n); err != nil {
				return err
			}
			if n != 1 {
				return fmt.Errorf("observed %d defaults", n)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, apperrors.ErrConflict)
		}
	}

	assert.Equal(t, 1, countDefaults(t, db, ws))
	def, err := m.GetDefaultCanvas(ctx, ws)
	require.NoError(t, err)
	assert.Contains(t, targets, def.ID)
}

func TestRenameAndMoveCanvas(t *testing.T) {
	m, _, owner, ws := newTestManager(t)
	ctx := context.Background()

	a, err := m.CreateCanvas(ctx, ws, "A", owner)
	require.NoError(t, err)
	_, err = m.CreateCanvas(ctx, ws, "B", owner)
	require.NoError(t, err)

	renamed, err := m.RenameCanvas(ctx, ws, a.ID, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", renamed.Name)

	_, err = m.RenameCanvas(ctx, ws, a.ID, "B")
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	_, err = m.RenameCanvas(ctx, ws, "missing", "C")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	moved, err := m.MoveCanvas(ctx, ws, a.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, moved.Position)

	_, err = m.MoveCanvas(ctx, ws, a.ID, -1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDeleteCanvas(t *testing.T) {
	m, db, owner, ws := newTestManager(t)
	ctx := context.Background()

	def, err := m.CreateCanvas(ctx, ws, "Main", owner)
	require.NoError(t, err)
	side, err := m.CreateCanvas(ctx, ws, "Side", owner)
	require.NoError(t, err)

	card := storagetest.InsertCard(t, db, ws, "note")
	_, err = db.Exec(`UPDATE cards SET canvas_id = $1 WHERE id = $2`, side.ID, card)
	require.NoError(t, err)

	err = m.DeleteCanvas(ctx, ws, def.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict, "default cannot go while others remain")

	require.NoError(t, m.DeleteCanvas(ctx, ws, side.ID))
	var canvasID string
	require.NoError(t, db.QueryRow(`SELECT canvas_id FROM cards WHERE id = $1`, card).Scan(&canvasID))
	assert.Equal(t, def.ID, canvasID, "cards move to the default")

	require.NoError(t, m.DeleteCanvas(ctx, ws, def.ID), "the only canvas may be deleted")
	assert.ErrorIs(t, m.DeleteCanvas(ctx, ws, def.ID), apperrors.ErrNotFound)

	next, err := m.CreateCanvas(ctx, ws, "Again", owner)
	require.NoError(t, err)
	assert.True(t, next.IsDefault)
}

func TestGetDefaultCanvas_None(t *testing.T) {
	m, _, _, ws := newTestManager(t)
	_, err := m.GetDefaultCanvas(context.Background(), ws)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListCanvases_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	m := NewManager(db, storagetest.QuietLogger(), nil)

	mock.ExpectQuery(`FROM canvases`).WithArgs("ws1").WillReturnError(errors.New("database connection error"))

	list, err := m.ListCanvases(context.Background(), "ws1")
	require.Error(t, err)
	assert.Nil(t, list)
	assert.Contains(t, err.Error(), "failed to list canvases")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDefaultCanvas_GuardMissRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	m := NewManager(db, storagetest.QuietLogger(), nil)

	now := time.Now()
	cols := []string{"id", "workspace_id", "name", "is_default", "position", "created_by", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM canvases WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs("c2", "ws1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c2", "ws1", "C2", false, 1, nil, now, now))
	mock.ExpectQuery(`SELECT id FROM canvases WHERE workspace_id = \$1 AND is_default`).
		WithArgs("ws1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectExec(`UPDATE canvases SET is_default = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = m.SetDefaultCanvas(context.Background(), "ws1", "c2")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
