package canvases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

const canvasColumns = `id, workspace_id, name, is_default, position, created_by, created_at, updated_at`

// Manager owns canvas writes and the default-canvas invariant
type Manager struct {
	db      *sql.DB
	now     func() time.Time
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewManager creates a canvas manager. logger and metrics may be nil.
func NewManager(db *sql.DB, logger logrus.FieldLogger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{db: db, now: time.Now, logger: logger, metrics: metrics}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCanvas(row scanner) (*Canvas, error) {
	c := &Canvas{}
	var createdBy sql.NullString
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.IsDefault, &c.Position, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedBy = createdBy.String
	return c, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateCanvas adds a canvas at the end of the workspace's ordering. It becomes the default
// when the workspace has no canvas yet.
func (m *Manager) CreateCanvas(ctx context.Context, workspaceID, name, createdBy string) (*Canvas, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	c, err := m.insert(ctx, m.db, workspaceID, name, createdBy)
	if isDefaultRace(err) {
		// Another writer created the first canvas between our existence check and insert.
		// Its canvas is now the default, so the retry inserts a regular one.
		c, err = m.insert(ctx, m.db, workspaceID, name, createdBy)
	}
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"canvas_id":    c.ID,
		"is_default":   c.IsDefault,
	}).Debug("Created canvas")
	return c, nil
}

// Bootstrap creates the default canvas of a freshly created workspace inside its creation
// transaction. It satisfies workspaces.Bootstrapper.
func (m *Manager) Bootstrap(ctx context.Context, tx *sql.Tx, ws *workspaces.Workspace) error {
	_, err := m.insert(ctx, tx, ws.ID, DefaultCanvasName, ws.OwnerID)
	return err
}

// insert decides is_default and position inside the INSERT so no reader-side race exists
func (m *Manager) insert(ctx context.Context, q storage.Querier, workspaceID, name, createdBy string) (*Canvas, error) {
	now := storage.Timestamp(m.now())
	id := uuid.NewString()

	_, err := q.ExecContext(ctx, `
		INSERT INTO canvases (id, workspace_id, name, is_default, position, created_by, created_at, updated_at)
		VALUES (
			$1, $2, $3,
			NOT EXISTS (SELECT 1 FROM canvases WHERE workspace_id = $2),
			COALESCE((SELECT MAX(position) + 1 FROM canvases WHERE workspace_id = $2), 0),
			$4, $5, $5
		)
	`, id, workspaceID, name, nullable(createdBy), now)
	if err != nil {
		return nil, translateCanvasError(err, name)
	}

	return m.get(ctx, q, workspaceID, id)
}

// translateCanvasError tells the per-workspace name constraint apart from the one-default index
func translateCanvasError(err error, name string) error {
	err = storage.TranslateError(err)
	if ce, ok := storage.AsConstraintError(err); ok && errors.Is(ce, apperrors.ErrDuplicate) {
		if ce.Involves("name") {
			return apperrors.Duplicate("canvas %q already exists in this workspace", name)
		}
		return errDefaultRace
	}
	return fmt.Errorf("failed to write canvas: %w", err)
}

// errDefaultRace marks a write rejected by the one-default index
var errDefaultRace = apperrors.Conflict("workspace default canvas changed concurrently")

func isDefaultRace(err error) bool {
	return errors.Is(err, errDefaultRace)
}

func (m *Manager) get(ctx context.Context, q storage.Querier, workspaceID, canvasID string) (*Canvas, error) {
	c, err := scanCanvas(q.QueryRowContext(ctx, `
		SELECT `+canvasColumns+` FROM canvases WHERE id = $1 AND workspace_id = $2
	`, canvasID, workspaceID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("canvas %s", canvasID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canvas: %w", err)
	}
	return c, nil
}

// GetCanvas returns a canvas of the workspace
func (m *Manager) GetCanvas(ctx context.Context, workspaceID, canvasID string) (*Canvas, error) {
	return m.get(ctx, m.db, workspaceID, canvasID)
}

// GetDefaultCanvas returns the workspace's default canvas
func (m *Manager) GetDefaultCanvas(ctx context.Context, workspaceID string) (*Canvas, error) {
	c, err := scanCanvas(m.db.QueryRowContext(ctx, `
		SELECT `+canvasColumns+` FROM canvases WHERE workspace_id = $1 AND is_default
	`, workspaceID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("workspace %s has no default canvas", workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default canvas: %w", err)
	}
	return c, nil
}

// ListCanvases returns the workspace's canvases in display order
func (m *Manager) ListCanvases(ctx context.Context, workspaceID string) ([]*Canvas, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+canvasColumns+`
		FROM canvases
		WHERE workspace_id = $1
		ORDER BY position ASC, created_at ASC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list canvases: %w", err)
	}
	defer rows.Close()

	var list []*Canvas
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canvas: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list canvases: %w", err)
	}
	return list, nil
}

// SetDefaultCanvas makes canvasID the workspace's default.
//
// The swap runs in one transaction: clear the current default guarded on it still being the
// default, then set the target guarded on it not being one. Readers see either the old or the
// new default. A guard that matches nothing, or a rejection by the one-default index, means a
// concurrent swap won and yields ErrConflict. Setting the current default again is a no-op.
func (m *Manager) SetDefaultCanvas(ctx context.Context, workspaceID, canvasID string) (*Canvas, error) {
	var out *Canvas
	err := storage.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		target, err := m.get(ctx, tx, workspaceID, canvasID)
		if err != nil {
			return err
		}
		if target.IsDefault {
			out = target
			return nil
		}

		now := storage.Timestamp(m.now())

		var current string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM canvases WHERE workspace_id = $1 AND is_default
		`, workspaceID).Scan(&current)
		switch {
		case err == sql.ErrNoRows:
			// No default yet, as after a partial backfill; only the set step applies.
		case err != nil:
			return fmt.Errorf("failed to read default canvas: %w", err)
		default:
			if err := m.guardedUpdate(ctx, tx, `
				UPDATE canvases SET is_default = FALSE, updated_at = $1
				WHERE id = $2 AND workspace_id = $3 AND is_default
			`, now, current, workspaceID); err != nil {
				return err
			}
		}

		if err := m.guardedUpdate(ctx, tx, `
			UPDATE canvases SET is_default = TRUE, updated_at = $1
			WHERE id = $2 AND workspace_id = $3 AND NOT is_default
		`, now, canvasID, workspaceID); err != nil {
			return err
		}

		target.IsDefault, target.UpdatedAt = true, now
		out = target
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			m.logger.WithFields(logrus.Fields{
				"workspace_id": workspaceID,
				"canvas_id":    canvasID,
			}).Debug("Lost default canvas race")
		}
		return nil, err
	}

	m.metrics.RecordDefaultCanvasChange()
	m.logger.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"canvas_id":    canvasID,
	}).Info("Default canvas changed")
	return out, nil
}

// guardedUpdate runs a compare-and-swap statement that must touch exactly one row
func (m *Manager) guardedUpdate(ctx context.Context, q storage.Querier, query string, args ...interface{}) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		translated := storage.TranslateError(err)
		if errors.Is(translated, apperrors.ErrDuplicate) || errors.Is(translated, apperrors.ErrConflict) {
			return errDefaultRace
		}
		return fmt.Errorf("failed to update default canvas: %w", translated)
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n != 1 {
		return errDefaultRace
	}
	return nil
}

// RenameCanvas renames a canvas; names are unique per workspace
func (m *Manager) RenameCanvas(ctx context.Context, workspaceID, canvasID, name string) (*Canvas, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	result, err := m.db.ExecContext(ctx, `
		UPDATE canvases SET name = $1, updated_at = $2 WHERE id = $3 AND workspace_id = $4
	`, name, storage.Timestamp(m.now()), canvasID, workspaceID)
	if err != nil {
		return nil, translateCanvasError(err, name)
	}
	if err := requireOne(result, canvasID); err != nil {
		return nil, err
	}
	return m.GetCanvas(ctx, workspaceID, canvasID)
}

// MoveCanvas changes a canvas's ordering position
func (m *Manager) MoveCanvas(ctx context.Context, workspaceID, canvasID string, position int) (*Canvas, error) {
	if position < 0 {
		return nil, apperrors.Validation("position must not be negative")
	}
	result, err := m.db.ExecContext(ctx, `
		UPDATE canvases SET position = $1, updated_at = $2 WHERE id = $3 AND workspace_id = $4
	`, position, storage.Timestamp(m.now()), canvasID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to move canvas: %w", storage.TranslateError(err))
	}
	if err := requireOne(result, canvasID); err != nil {
		return nil, err
	}
	return m.GetCanvas(ctx, workspaceID, canvasID)
}

// DeleteCanvas deletes a canvas and moves its cards to the workspace default. The default
// canvas can only be deleted when it is the workspace's only canvas.
func (m *Manager) DeleteCanvas(ctx context.Context, workspaceID, canvasID string) error {
	return storage.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		target, err := m.get(ctx, tx, workspaceID, canvasID)
		if err != nil {
			return err
		}

		if !target.IsDefault {
			_, err := tx.ExecContext(ctx, `
				UPDATE cards
				SET canvas_id = (SELECT id FROM canvases WHERE workspace_id = $1 AND is_default), updated_at = $2
				WHERE canvas_id = $3
			`, workspaceID, storage.Timestamp(m.now()), canvasID)
			if err != nil {
				return fmt.Errorf("failed to move cards off canvas: %w", storage.TranslateError(err))
			}
		}

		// The guard re-checks the default rule in the same statement as the delete.
		result, err := tx.ExecContext(ctx, `
			DELETE FROM canvases
			WHERE id = $1 AND workspace_id = $2
			  AND (NOT is_default OR (SELECT COUNT(*) FROM canvases WHERE workspace_id = $2) = 1)
		`, canvasID, workspaceID)
		if err != nil {
			return fmt.Errorf("failed to delete canvas: %w", storage.TranslateError(err))
		}
		n, err := storage.RowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.Conflict("canvas %s is the default; set another default before deleting it", canvasID)
		}
		return nil
	})
}

func requireOne(result sql.Result, canvasID string) error {
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound("canvas %s", canvasID)
	}
	return nil
}
