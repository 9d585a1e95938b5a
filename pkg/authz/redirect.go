package authz

import "github.com/platinummonkey/atrium/pkg/rbac"

// RedirectTarget picks the workspace a client should land on. The current workspace wins
// while the user can still read it; otherwise the earliest-joined readable workspace is
// chosen. ok is false when the user can read no workspace at all.
func RedirectTarget(snap *Snapshot, current string) (workspaceID string, ok bool) {
	if snap == nil {
		return "", false
	}
	if current != "" && snap.Permissions(current).Contains(rbac.PermWorkspaceRead) {
		return current, true
	}
	for _, id := range snap.Order {
		if snap.Workspaces[id].Contains(rbac.PermWorkspaceRead) {
			return id, true
		}
	}
	return "", false
}
