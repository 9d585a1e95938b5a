package authz

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// MembershipReader is the slice of the membership store the resolver reads
type MembershipReader interface {
	GetMembership(ctx context.Context, q storage.Querier, userID, workspaceID string) (*workspaces.Membership, error)
	ListUserMemberships(ctx context.Context, userID string) ([]*workspaces.Membership, error)
}

// Resolver computes effective permissions from the membership store
type Resolver struct {
	members MembershipReader
}

// NewResolver creates a resolver over members
func NewResolver(members MembershipReader) *Resolver {
	return &Resolver{members: members}
}

// Effective is the role's base permissions plus the membership's overrides
func Effective(m *workspaces.Membership) rbac.PermissionSet {
	if m == nil {
		return rbac.NewPermissionSet()
	}
	return rbac.PermissionsForRole(m.Role).Union(m.Permissions)
}

// Membership returns the user's membership and effective permissions. A user with no
// membership gets a nil membership and an empty set, not an error.
func (r *Resolver) Membership(ctx context.Context, userID, workspaceID string) (*workspaces.Membership, rbac.PermissionSet, error) {
	if userID == "" || workspaceID == "" {
		return nil, rbac.NewPermissionSet(), nil
	}
	m, err := r.members.GetMembership(ctx, nil, userID, workspaceID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, rbac.NewPermissionSet(), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return m, Effective(m), nil
}

// EffectivePermissions returns what userID may do in workspaceID; empty when not a member
func (r *Resolver) EffectivePermissions(ctx context.Context, userID, workspaceID string) (rbac.PermissionSet, error) {
	_, perms, err := r.Membership(ctx, userID, workspaceID)
	return perms, err
}

// Snapshot is a user's effective permissions in every workspace they belong to, taken
// from one read. Treat it as read-only; caches share it between callers.
type Snapshot struct {
	UserID     string                        `json:"user_id"`
	Workspaces map[string]rbac.PermissionSet `json:"workspaces"`
	// Order lists workspace ids by when the user joined them
	Order    []string  `json:"order"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Permissions returns the effective permissions in workspaceID; empty when not a member
func (s *Snapshot) Permissions(workspaceID string) rbac.PermissionSet {
	if s == nil {
		return rbac.NewPermissionSet()
	}
	if perms, ok := s.Workspaces[workspaceID]; ok {
		return perms
	}
	return rbac.NewPermissionSet()
}

// EffectivePermissionsByWorkspace computes the user's permissions in every workspace from
// a single statement, so all entries reflect the same point in time
func (r *Resolver) EffectivePermissionsByWorkspace(ctx context.Context, userID string) (*Snapshot, error) {
	memberships, err := r.members.ListUserMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		UserID:     userID,
		Workspaces: make(map[string]rbac.PermissionSet, len(memberships)),
		Order:      make([]string, 0, len(memberships)),
		LoadedAt:   time.Now(),
	}
	for _, m := range memberships {
		snap.Workspaces[m.WorkspaceID] = Effective(m)
		snap.Order = append(snap.Order, m.WorkspaceID)
	}
	return snap, nil
}
