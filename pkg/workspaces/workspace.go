package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/storage"
)

// MaxNameLength is the longest accepted workspace name, in characters
const MaxNameLength = 200

// ValidateName trims a workspace name and checks its length
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation("workspace name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperrors.Validation("workspace name must be at most %d characters", MaxNameLength)
	}
	return name, nil
}

// CreateWorkspace creates a workspace owned by ownerID together with the owner's membership.
// Each bootstrapper then runs in the same transaction, so a failure leaves nothing behind.
func (s *Store) CreateWorkspace(ctx context.Context, ownerID, name string, bootstrap ...Bootstrapper) (*Workspace, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	ws := &Workspace{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workspaces (id, owner_id, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, ws.ID, ownerID, ws.Name, now)
		if err != nil {
			return fmt.Errorf("failed to create workspace: %w", storage.TranslateError(err))
		}

		owner := &Membership{WorkspaceID: ws.ID, UserID: ownerID, Role: rbac.RoleOwner}
		if err := s.InsertMembership(ctx, tx, owner); err != nil {
			return err
		}

		for _, fn := range bootstrap {
			if err := fn(ctx, tx, ws); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// GetWorkspace returns a workspace by id
func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	ws := &Workspace{}
	var ownerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at, updated_at FROM workspaces WHERE id = $1
	`, id).Scan(&ws.ID, &ownerID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("workspace %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	ws.OwnerID = ownerID.String
	return ws, nil
}

// RenameWorkspace changes a workspace's display name
func (s *Store) RenameWorkspace(ctx context.Context, id, name string) (*Workspace, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET name = $1, updated_at = $2 WHERE id = $3
	`, name, s.timestamp(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to rename workspace: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperrors.NotFound("workspace %s", id)
	}
	return s.GetWorkspace(ctx, id)
}

// DeleteWorkspace deletes a workspace; memberships, invites, canvases and cards cascade
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound("workspace %s", id)
	}
	return nil
}
