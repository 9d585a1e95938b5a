// Package rbac is the role and permission catalog for Atrium workspaces.
//
// # Overview
//
// The catalog is a static mapping from a workspace role to the set of permissions it
// grants. It is compiled into the binary: changing it requires a deployment, never a
// database write.
//
// # Resources and Actions
//
// Permissions combine a resource and an action and are written "resource:action":
//
//	workspace:read  workspace:update  workspace:delete  workspace:invite  workspace:manage_members
//	canvas:read     canvas:create     canvas:update     canvas:delete     canvas:set_default
//	card:read       card:create       card:update       card:delete
//	invite:read     invite:cancel
//
// Any other string is rejected by ParsePermission, so unknown permissions can never be
// granted or stored.
//
// # Roles
//
// Roles form a closed, ranked set:
//
//	owner  - every permission
//	admin  - every permission except workspace:delete
//	editor - read the workspace, work on canvases and cards, see invites
//	viewer - read-only access to the workspace, its canvases and cards
//
// # Usage Example
//
//	role, err := rbac.ParseRole("editor")
//	if err != nil {
//		return err // apperrors.ErrValidation
//	}
//	overrides, err := rbac.ParsePermissions([]string{"canvas:set_default"})
//	if err != nil {
//		return err
//	}
//	effective := rbac.PermissionsForRole(role).Union(overrides)
//	if !effective.Contains(rbac.PermCanvasSetDefault) {
//		// deny
//	}
//
// PermissionSet implements sql.Scanner and driver.Valuer and is persisted as a sorted
// JSON array of permission strings.
package rbac
