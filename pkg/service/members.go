package service

import (
	"context"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/authz"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// CreateWorkspace creates a workspace owned by actor, with the owner membership and a
// default "Main Canvas" in the same transaction
func (s *Service) CreateWorkspace(ctx context.Context, actor *identity.User, name string) (*workspaces.Workspace, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var ws *workspaces.Workspace
	err := s.exec(ctx, authz.Operation{Name: "workspace.create", UserID: actor.ID}, func(ctx context.Context) error {
		var err error
		ws, err = s.members.CreateWorkspace(ctx, actor.ID, name, s.canvases.Bootstrap)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, actor.ID)
	return ws, nil
}

// GetWorkspace returns a workspace the actor can read
func (s *Service) GetWorkspace(ctx context.Context, actor *identity.User, workspaceID string) (*workspaces.Workspace, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var ws *workspaces.Workspace
	err := s.exec(ctx, authz.Operation{
		Name:        "workspace.get",
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{rbac.PermWorkspaceRead},
	}, func(ctx context.Context) error {
		var err error
		ws, err = s.members.GetWorkspace(ctx, workspaceID)
		return err
	})
	return ws, err
}

// DeleteWorkspace deletes a workspace and everything in it. Requires workspace:delete.
func (s *Service) DeleteWorkspace(ctx context.Context, actor *identity.User, workspaceID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	var affected []string
	err := s.exec(ctx, authz.Operation{
		Name:        "workspace.delete",
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{rbac.PermWorkspaceDelete},
	}, func(ctx context.Context) error {
		members, err := s.members.ListMembers(ctx, workspaceID)
		if err != nil {
			return err
		}
		for _, m := range members {
			affected = append(affected, m.UserID)
		}
		return s.members.DeleteWorkspace(ctx, workspaceID)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, affected...)
	return nil
}

// ListMembers lists a workspace's members. Requires workspace:read.
func (s *Service) ListMembers(ctx context.Context, actor *identity.User, workspaceID string) ([]*workspaces.Member, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var members []*workspaces.Member
	err := s.exec(ctx, authz.Operation{
		Name:        "member.list",
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{rbac.PermWorkspaceRead},
	}, func(ctx context.Context) error {
		var err error
		members, err = s.members.ListMembers(ctx, workspaceID)
		return err
	})
	return members, err
}

// guardTarget rejects changes to a member who outranks the acting member
func (s *Service) guardTarget(ctx context.Context, d authz.Decision, userID, workspaceID string) (*workspaces.Membership, error) {
	target, err := s.members.GetMembership(ctx, nil, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	if target.Role.Outranks(d.Role()) {
		return nil, apperrors.Forbidden("cannot modify a %s while holding %s", target.Role, d.Role())
	}
	return target, nil
}

// AssignRole changes a member's role. Requires workspace:manage_members; the actor may not
// grant a role above their own or modify a member who outranks them.
func (s *Service) AssignRole(ctx context.Context, actor *identity.User, userID, workspaceID, role string) (*workspaces.Membership, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	r, err := rbac.ParseRole(role)
	if err != nil {
		return nil, err
	}

	var m *workspaces.Membership
	err = s.exec(ctx, authz.Operation{
		Name:        "member.assign_role",
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{rbac.PermWorkspaceManageMembers},
	}, func(ctx context.Context) error {
		d, _ := authz.DecisionFromContext(ctx)
		if r.Outranks(d.Role()) {
			return apperrors.Forbidden("cannot assign %s while holding %s", r, d.Role())
		}
		if _, err := s.guardTarget(ctx, d, userID, workspaceID); err != nil {
			return err
		}
		var err error
		m, err = s.members.SetRole(ctx, nil, userID, workspaceID, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, userID)
	return m, nil
}

// GrantPermissions adds permission overrides to a member. Requires
// workspace:manage_members and every granted permission.
func (s *Service) GrantPermissions(ctx context.Context, actor *identity.User, userID, workspaceID string, perms []string) (*workspaces.Membership, error) {
	return s.modifyPermissions(ctx, "member.grant_permissions", actor, userID, workspaceID, perms, rbac.PermissionSet.Union)
}

// RevokePermissions removes permission overrides from a member. Permissions that come
// with the member's role are unaffected. Requires workspace:manage_members.
func (s *Service) RevokePermissions(ctx context.Context, actor *identity.User, userID, workspaceID string, perms []string) (*workspaces.Membership, error) {
	return s.modifyPermissions(ctx, "member.revoke_permissions", actor, userID, workspaceID, perms,
		func(cur, revoked rbac.PermissionSet) rbac.PermissionSet { return cur.Without(revoked.Slice()...) })
}

func (s *Service) modifyPermissions(ctx context.Context, name string, actor *identity.User, userID, workspaceID string,
	perms []string, apply func(cur, change rbac.PermissionSet) rbac.PermissionSet) (*workspaces.Membership, error) {

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	change, err := rbac.ParsePermissions(perms)
	if err != nil {
		return nil, err
	}
	if len(change) == 0 {
		return nil, apperrors.Validation("at least one permission is required")
	}

	var m *workspaces.Membership
	err = s.exec(ctx, authz.Operation{
		Name:        name,
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{rbac.PermWorkspaceManageMembers},
	}, func(ctx context.Context) error {
		d, _ := authz.DecisionFromContext(ctx)
		if missing := d.Effective.Missing(change.Slice()...); len(missing) > 0 {
			return apperrors.Forbidden("cannot change permissions you do not hold: %v", missing)
		}
		if _, err := s.guardTarget(ctx, d, userID, workspaceID); err != nil {
			return err
		}
		var err error
		m, err = s.members.ModifyPermissions(ctx, nil, userID, workspaceID, func(cur rbac.PermissionSet) rbac.PermissionSet {
			return apply(cur, change)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, userID)
	return m, nil
}

// RemoveMember removes userID from the workspace. Members may always leave; removing
// someone else requires workspace:manage_members and not being outranked by them.
func (s *Service) RemoveMember(ctx context.Context, actor *identity.User, userID, workspaceID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	required := rbac.PermWorkspaceManageMembers
	if userID == actor.ID {
		required = rbac.PermWorkspaceRead
	}

	err := s.exec(ctx, authz.Operation{
		Name:        "member.remove",
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{required},
	}, func(ctx context.Context) error {
		if userID != actor.ID {
			d, _ := authz.DecisionFromContext(ctx)
			if _, err := s.guardTarget(ctx, d, userID, workspaceID); err != nil {
				return err
			}
		}
		return s.members.RemoveMembership(ctx, nil, userID, workspaceID)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}
