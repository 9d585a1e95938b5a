package canvases

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/storage"
)

type backfillTarget struct {
	workspaceID string
	ownerID     sql.NullString
}

// Backfill brings every workspace in line with the default-canvas invariant:
//
//   - a workspace without canvases gets a default "Main Canvas" owned by the workspace owner
//   - a workspace with canvases but no default gets its first canvas by position promoted
//   - cards without a canvas are attached to their workspace's default
//
// Each workspace is repaired in its own transaction. Running Backfill again changes nothing.
func (m *Manager) Backfill(ctx context.Context) (*BackfillReport, error) {
	targets, err := m.backfillTargets(ctx)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{}
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.WorkspacesScanned++

		var created, promoted, reassigned int
		err := storage.WithTx(ctx, m.db, func(tx *sql.Tx) error {
			var err error
			created, promoted, reassigned, err = m.backfillWorkspace(ctx, tx, target)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("failed to backfill workspace %s: %w", target.workspaceID, err)
		}

		report.CanvasesCreated += created
		report.DefaultsPromoted += promoted
		report.CardsReassigned += reassigned

		if created+promoted+reassigned > 0 {
			m.logger.WithFields(logrus.Fields{
				"workspace_id":     target.workspaceID,
				"canvas_created":   created > 0,
				"default_promoted": promoted > 0,
				"cards_reassigned": reassigned,
			}).Info("Backfilled workspace")
		}
	}

	m.metrics.RecordBackfill("canvas_created", report.CanvasesCreated)
	m.metrics.RecordBackfill("default_promoted", report.DefaultsPromoted)
	m.metrics.RecordBackfill("card_reassigned", report.CardsReassigned)
	return report, nil
}

func (m *Manager) backfillTargets(ctx context.Context) ([]backfillTarget, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, owner_id FROM workspaces ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var targets []backfillTarget
	for rows.Next() {
		var t backfillTarget
		if err := rows.Scan(&t.workspaceID, &t.ownerID); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (m *Manager) backfillWorkspace(ctx context.Context, tx *sql.Tx, target backfillTarget) (created, promoted, reassigned int, err error) {
	now := storage.Timestamp(m.now())

	var canvasCount, defaultCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_default THEN 1 ELSE 0 END), 0)
		FROM canvases WHERE workspace_id = $1
	`, target.workspaceID).Scan(&canvasCount, &defaultCount)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count canvases: %w", err)
	}

	switch {
	case canvasCount == 0:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO canvases (id, workspace_id, name, is_default, position, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, 0, $4, $5, $5)
		`, uuid.NewString(), target.workspaceID, DefaultCanvasName, target.ownerID, now)
		if err != nil {
			return 0, 0, 0, translateCanvasError(err, DefaultCanvasName)
		}
		created = 1

	case defaultCount == 0:
		var first string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM canvases WHERE workspace_id = $1
			ORDER BY position ASC, created_at ASC, id ASC
			LIMIT 1
		`, target.workspaceID).Scan(&first)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("failed to pick canvas to promote: %w", err)
		}
		if err := m.guardedUpdate(ctx, tx, `
			UPDATE canvases SET is_default = TRUE, updated_at = $1
			WHERE id = $2 AND workspace_id = $3 AND NOT is_default
		`, now, first, target.workspaceID); err != nil {
			return 0, 0, 0, err
		}
		promoted = 1
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET canvas_id = (SELECT id FROM canvases WHERE workspace_id = $1 AND is_default), updated_at = $2
		WHERE workspace_id = $1 AND canvas_id IS NULL
	`, target.workspaceID, now)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to reassign cards: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return 0, 0, 0, err
	}

	return created, promoted, int(n), nil
}
