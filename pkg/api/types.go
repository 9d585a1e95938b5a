package api

import (
	"github.com/platinummonkey/atrium/pkg/invites"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type authorizeRequest struct {
	UserID      string   `json:"user_id,omitempty"`
	Permissions []string `json:"permissions"`
}

type authorizeResponse struct {
	Allowed bool `json:"allowed"`
}

type createCanvasRequest struct {
	Name string `json:"name"`
}

// updateCanvasRequest renames and/or moves a canvas; at least one field is required
type updateCanvasRequest struct {
	Name     *string `json:"name,omitempty"`
	Position *int    `json:"position,omitempty"`
}

type setDefaultCanvasRequest struct {
	CanvasID string `json:"canvas_id"`
}

type createInviteRequest struct {
	Email       string           `json:"email"`
	Role        string           `json:"role"`
	Permissions []string         `json:"permissions,omitempty"`
	Message     string           `json:"message,omitempty"`
	Metadata    invites.Metadata `json:"metadata,omitempty"`
}

// createInviteResponse is the only response that carries the redemption token
type createInviteResponse struct {
	*invites.Invite
	Token string `json:"token"`
}

type redirectResponse struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	Found       bool   `json:"found"`
}
