package invites

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/rbac"
)

// Status is the lifecycle state of an invitation
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// DefaultValidity is how long a new invitation can be redeemed
const DefaultValidity = 7 * 24 * time.Hour

// MaxMessageLength bounds the personal note attached to an invitation
const MaxMessageLength = 1000

// ParseStatus validates s as a known status
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired, StatusCancelled:
		return st, nil
	}
	return "", apperrors.Validation("unknown invite status %q", s)
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Metadata is free-form JSON attached to an invitation
type Metadata map[string]interface{}

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into invites.Metadata", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("invalid invite metadata: %w", err)
	}
	*m = out
	return nil
}

// Invite is an invitation to join a workspace
type Invite struct {
	ID          string             `json:"id"`
	WorkspaceID string             `json:"workspace_id"`
	InvitedBy   string             `json:"invited_by,omitempty"`
	Email       string             `json:"email"`
	UserID      string             `json:"user_id,omitempty"`
	Role        rbac.Role          `json:"role"`
	Permissions rbac.PermissionSet `json:"permissions"`
	Token       string             `json:"-"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Status      Status             `json:"status"`
	AcceptedAt  *time.Time         `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time         `json:"rejected_at,omitempty"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
	Message     string             `json:"message,omitempty"`
	Metadata    Metadata           `json:"metadata"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// StatusAt reports the status as of now, treating a pending invite past its window as expired
func (i *Invite) StatusAt(now time.Time) Status {
	if i.Status == StatusPending && i.ExpiresAt.Before(now) {
		return StatusExpired
	}
	return i.Status
}

// CreateRequest describes a new invitation
type CreateRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	Message     string   `json:"message,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Inviter is the acting member's standing in the workspace, resolved by the caller
type Inviter struct {
	UserID    string
	Role      rbac.Role
	Effective rbac.PermissionSet
}
