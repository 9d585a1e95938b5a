package workspaces

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/atrium/pkg/rbac"
)

// Workspace is the root of the authorization tree
type Workspace struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership grants a user a role in a workspace, plus optional permission overrides
type Membership struct {
	ID          string             `json:"id"`
	WorkspaceID string             `json:"workspace_id"`
	UserID      string             `json:"user_id"`
	Role        rbac.Role          `json:"role"`
	Permissions rbac.PermissionSet `json:"permissions"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Member is a membership joined with the user's profile
type Member struct {
	Membership
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Bootstrapper runs inside the workspace creation transaction, after the owner membership exists
type Bootstrapper func(ctx context.Context, tx *sql.Tx, ws *Workspace) error
