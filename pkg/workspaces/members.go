package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/storage"
)

const membershipColumns = `id, workspace_id, user_id, role, permissions, created_at, updated_at`

// maxCASAttempts bounds read-modify-write retries when another writer changes the row first
const maxCASAttempts = 3

// Store persists workspaces and memberships
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store backed by db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) timestamp() time.Time {
	return storage.Timestamp(s.now())
}

func (s *Store) querier(q storage.Querier) storage.Querier {
	if q == nil {
		return s.db
	}
	return q
}

// inTx runs fn on q when the caller supplied one, otherwise in a new transaction
func (s *Store) inTx(ctx context.Context, q storage.Querier, fn func(q storage.Querier) error) error {
	if q != nil {
		return fn(q)
	}
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error { return fn(tx) })
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row scanner) (*Membership, error) {
	m := &Membership{}
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.Permissions, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMembership returns the membership of userID in workspaceID. q may be nil.
func (s *Store) GetMembership(ctx context.Context, q storage.Querier, userID, workspaceID string) (*Membership, error) {
	m, err := scanMembership(s.querier(q).QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM workspace_memberships
		WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("membership not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// InsertMembership adds a membership and fails with ErrDuplicate when the user is already a member
func (s *Store) InsertMembership(ctx context.Context, q storage.Querier, m *Membership) error {
	if !m.Role.Valid() {
		return apperrors.Validation("unknown role %q", m.Role)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Permissions == nil {
		m.Permissions = rbac.NewPermissionSet()
	}
	now := s.timestamp()
	m.CreatedAt, m.UpdatedAt = now, now

	result, err := s.querier(q).ExecContext(ctx, `
		INSERT INTO workspace_memberships (id, workspace_id, user_id, role, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, m.ID, m.WorkspaceID, m.UserID, m.Role, m.Permissions, now)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.Duplicate("user %s is already a member of workspace %s", m.UserID, m.WorkspaceID)
	}
	return nil
}

// UpsertMembership inserts a membership or, when one exists, replaces its role and overrides.
// Replacing the role of the last owner fails with ErrConflict.
func (s *Store) UpsertMembership(ctx context.Context, q storage.Querier, userID, workspaceID string, role rbac.Role, overrides rbac.PermissionSet) (*Membership, error) {
	var out *Membership
	err := s.inTx(ctx, q, func(q storage.Querier) error {
		m := &Membership{WorkspaceID: workspaceID, UserID: userID, Role: role, Permissions: overrides}
		err := s.InsertMembership(ctx, q, m)
		if err == nil {
			out = m
			return nil
		}
		if !errors.Is(err, apperrors.ErrDuplicate) {
			return err
		}

		return s.modify(ctx, q, userID, workspaceID, func(cur *Membership) (rbac.Role, rbac.PermissionSet) {
			return role, overrides
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MergeMembership inserts a membership or raises an existing one: the role becomes the more
// privileged of the two and the overrides are unioned. It never lowers access.
func (s *Store) MergeMembership(ctx context.Context, q storage.Querier, userID, workspaceID string, role rbac.Role, overrides rbac.PermissionSet) (*Membership, error) {
	var out *Membership
	err := s.inTx(ctx, q, func(q storage.Querier) error {
		m := &Membership{WorkspaceID: workspaceID, UserID: userID, Role: role, Permissions: overrides}
		err := s.InsertMembership(ctx, q, m)
		if err == nil {
			out = m
			return nil
		}
		if !errors.Is(err, apperrors.ErrDuplicate) {
			return err
		}

		return s.modify(ctx, q, userID, workspaceID, func(cur *Membership) (rbac.Role, rbac.PermissionSet) {
			return cur.Role.Max(role), cur.Permissions.Union(overrides)
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetRole changes a member's role, keeping their overrides
func (s *Store) SetRole(ctx context.Context, q storage.Querier, userID, workspaceID string, role rbac.Role) (*Membership, error) {
	var out *Membership
	err := s.inTx(ctx, q, func(q storage.Querier) error {
		return s.modify(ctx, q, userID, workspaceID, func(cur *Membership) (rbac.Role, rbac.PermissionSet) {
			return role, cur.Permissions
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ModifyPermissions replaces a member's overrides with fn(current overrides)
func (s *Store) ModifyPermissions(ctx context.Context, q storage.Querier, userID, workspaceID string, fn func(rbac.PermissionSet) rbac.PermissionSet) (*Membership, error) {
	var out *Membership
	err := s.inTx(ctx, q, func(q storage.Querier) error {
		return s.modify(ctx, q, userID, workspaceID, func(cur *Membership) (rbac.Role, rbac.PermissionSet) {
			return cur.Role, fn(cur.Permissions)
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// modify applies change to an existing membership with a compare-and-swap on the values it
// read, retrying when a concurrent writer got there first. A change that would demote the
// workspace's last owner fails with ErrConflict.
func (s *Store) modify(ctx context.Context, q storage.Querier, userID, workspaceID string,
	change func(cur *Membership) (rbac.Role, rbac.PermissionSet), out **Membership) error {

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, rawPerms, err := s.readForUpdate(ctx, q, userID, workspaceID)
		if err != nil {
			return err
		}

		role, perms := change(cur)
		if !role.Valid() {
			return apperrors.Validation("unknown role %q", role)
		}
		if perms == nil {
			perms = rbac.NewPermissionSet()
		}
		if role == cur.Role && perms.Equal(cur.Permissions) {
			*out = cur
			return nil
		}

		if cur.Role == rbac.RoleOwner && role != rbac.RoleOwner {
			if err := s.requireAnotherOwner(ctx, q, workspaceID); err != nil {
				return err
			}
		}

		now := s.timestamp()
		result, err := q.ExecContext(ctx, `
			UPDATE workspace_memberships
			SET role = $1, permissions = $2, updated_at = $3
			WHERE id = $4 AND role = $5 AND permissions = $6
		`, role, perms, now, cur.ID, cur.Role, rawPerms)
		if err != nil {
			return fmt.Errorf("failed to update membership: %w", storage.TranslateError(err))
		}
		n, err := storage.RowsAffected(result)
		if err != nil {
			return err
		}
		if n == 1 {
			cur.Role, cur.Permissions, cur.UpdatedAt = role, perms, now
			*out = cur
			return nil
		}
	}
	return apperrors.Conflict("membership of user %s changed concurrently", userID)
}

// readForUpdate returns the membership and its permissions column exactly as stored
func (s *Store) readForUpdate(ctx context.Context, q storage.Querier, userID, workspaceID string) (*Membership, string, error) {
	m := &Membership{}
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT id, workspace_id, user_id, role, permissions, created_at, updated_at
		FROM workspace_memberships
		WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &raw, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", apperrors.NotFound("membership not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get membership: %w", err)
	}
	if err := m.Permissions.Scan(raw); err != nil {
		return nil, "", fmt.Errorf("failed to decode membership permissions: %w", err)
	}
	return m, raw, nil
}

// requireAnotherOwner locks the workspace row, then checks that more than one owner exists.
// The lock serializes concurrent demotions and removals of owners.
func (s *Store) requireAnotherOwner(ctx context.Context, q storage.Querier, workspaceID string) error {
	if err := s.lockWorkspace(ctx, q, workspaceID); err != nil {
		return err
	}
	var owners int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workspace_memberships WHERE workspace_id = $1 AND role = 'owner'
	`, workspaceID).Scan(&owners)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if owners <= 1 {
		return apperrors.Conflict("workspace %s must keep at least one owner", workspaceID)
	}
	return nil
}

func (s *Store) lockWorkspace(ctx context.Context, q storage.Querier, workspaceID string) error {
	result, err := q.ExecContext(ctx, `UPDATE workspaces SET updated_at = $1 WHERE id = $2`, s.timestamp(), workspaceID)
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound("workspace %s", workspaceID)
	}
	return nil
}

// RemoveMembership removes a user from a workspace. Removing the last owner fails with ErrConflict.
func (s *Store) RemoveMembership(ctx context.Context, q storage.Querier, userID, workspaceID string) error {
	return s.inTx(ctx, q, func(q storage.Querier) error {
		cur, err := s.GetMembership(ctx, q, userID, workspaceID)
		if err != nil {
			return err
		}
		if cur.Role == rbac.RoleOwner {
			if err := s.requireAnotherOwner(ctx, q, workspaceID); err != nil {
				return err
			}
		}

		result, err := q.ExecContext(ctx, `DELETE FROM workspace_memberships WHERE id = $1`, cur.ID)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", storage.TranslateError(err))
		}
		n, err := storage.RowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.NotFound("membership not found")
		}
		return nil
	})
}

// ListMembers returns every member of a workspace with their profile, oldest first
func (s *Store) ListMembers(ctx context.Context, workspaceID string) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.permissions, m.created_at, m.updated_at,
		       u.email, u.display_name
		FROM workspace_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(
			&member.ID, &member.WorkspaceID, &member.UserID, &member.Role, &member.Permissions,
			&member.CreatedAt, &member.UpdatedAt, &member.Email, &member.DisplayName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ListUserMemberships returns all of a user's memberships, oldest first, from a single statement
func (s *Store) ListUserMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+membershipColumns+`
		FROM workspace_memberships
		WHERE user_id = $1
		ORDER BY created_at ASC, workspace_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}
