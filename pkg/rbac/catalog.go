package rbac

// Permissions in the catalog vocabulary
var (
	PermWorkspaceRead          = Permission{Resource: ResourceWorkspace, Action: ActionRead}
	PermWorkspaceUpdate        = Permission{Resource: ResourceWorkspace, Action: ActionUpdate}
	PermWorkspaceDelete        = Permission{Resource: ResourceWorkspace, Action: ActionDelete}
	PermWorkspaceInvite        = Permission{Resource: ResourceWorkspace, Action: ActionInvite}
	PermWorkspaceManageMembers = Permission{Resource: ResourceWorkspace, Action: ActionManageMembers}

	PermCanvasRead       = Permission{Resource: ResourceCanvas, Action: ActionRead}
	PermCanvasCreate     = Permission{Resource: ResourceCanvas, Action: ActionCreate}
	PermCanvasUpdate     = Permission{Resource: ResourceCanvas, Action: ActionUpdate}
	PermCanvasDelete     = Permission{Resource: ResourceCanvas, Action: ActionDelete}
	PermCanvasSetDefault = Permission{Resource: ResourceCanvas, Action: ActionSetDefault}

	PermCardRead   = Permission{Resource: ResourceCard, Action: ActionRead}
	PermCardCreate = Permission{Resource: ResourceCard, Action: ActionCreate}
	PermCardUpdate = Permission{Resource: ResourceCard, Action: ActionUpdate}
	PermCardDelete = Permission{Resource: ResourceCard, Action: ActionDelete}

	PermInviteRead   = Permission{Resource: ResourceInvite, Action: ActionRead}
	PermInviteCancel = Permission{Resource: ResourceInvite, Action: ActionCancel}
)

var vocabulary = NewPermissionSet(
	PermWorkspaceRead,
	PermWorkspaceUpdate,
	PermWorkspaceDelete,
	PermWorkspaceInvite,
	PermWorkspaceManageMembers,
	PermCanvasRead,
	PermCanvasCreate,
	PermCanvasUpdate,
	PermCanvasDelete,
	PermCanvasSetDefault,
	PermCardRead,
	PermCardCreate,
	PermCardUpdate,
	PermCardDelete,
	PermInviteRead,
	PermInviteCancel,
)

var rolePermissions = map[Role][]Permission{
	RoleOwner: vocabulary.Slice(),
	RoleAdmin: vocabulary.Without(PermWorkspaceDelete).Slice(),
	RoleEditor: {
		PermWorkspaceRead,
		PermCanvasRead,
		PermCanvasCreate,
		PermCanvasUpdate,
		PermCardRead,
		PermCardCreate,
		PermCardUpdate,
		PermCardDelete,
		PermInviteRead,
	},
	RoleViewer: {
		PermWorkspaceRead,
		PermCanvasRead,
		PermCardRead,
	},
}

// IsKnown reports whether p belongs to the catalog vocabulary
func IsKnown(p Permission) bool {
	return vocabulary.Contains(p)
}

// Vocabulary returns every permission the catalog knows about
func Vocabulary() PermissionSet {
	return vocabulary.Union(nil)
}

// PermissionsForRole returns a fresh copy of the base permission set for role.
// Unknown roles grant nothing.
func PermissionsForRole(role Role) PermissionSet {
	return NewPermissionSet(rolePermissions[role]...)
}
