package rbac

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceWorkspace Resource = "workspace"
	ResourceCanvas    Resource = "canvas"
	ResourceCard      Resource = "card"
	ResourceInvite    Resource = "invite"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionInvite        Action = "invite"
	ActionManageMembers Action = "manage_members"
	ActionSetDefault    Action = "set_default"
	ActionCancel        Action = "cancel"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// MarshalText encodes the permission as "resource:action"
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes and validates a "resource:action" string
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission parses s and checks it against the catalog vocabulary.
// Unknown permissions are rejected, never stored.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, apperrors.Validation("permission %q must have the form resource:action", s)
	}
	p := Permission{Resource: Resource(resource), Action: Action(action)}
	if !IsKnown(p) {
		return Permission{}, apperrors.Validation("unknown permission %q", s)
	}
	return p, nil
}

// ParsePermissions parses every string, reporting all unknown entries at once
func ParsePermissions(values []string) (PermissionSet, error) {
	set := NewPermissionSet()
	var invalid []string
	for _, v := range values {
		p, err := ParsePermission(v)
		if err != nil {
			invalid = append(invalid, v)
			continue
		}
		set.Add(p)
	}
	if len(invalid) > 0 {
		return nil, apperrors.Validation("unknown permissions: %s", strings.Join(invalid, ", "))
	}
	return set, nil
}

// Role is the closed set of workspace roles
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Roles returns every role from most to least privileged
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleEditor, RoleViewer}
}

// ParseRole validates s as one of the known roles
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", apperrors.Validation("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Outranks reports whether r is strictly more privileged than other
func (r Role) Outranks(other Role) bool {
	return roleRank[r] > roleRank[other]
}

// Max returns the more privileged of r and other
func (r Role) Max(other Role) Role {
	if other.Outranks(r) {
		return other
	}
	return r
}

func (r Role) String() string {
	return string(r)
}

// Scan implements sql.Scanner so roles read from storage are validated
func (r *Role) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into rbac.Role", src)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
