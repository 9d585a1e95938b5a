package rbac

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// PermissionSet is an unordered set of permissions. The zero value is not usable;
// create sets with NewPermissionSet.
type PermissionSet map[Permission]struct{}

// NewPermissionSet creates a set holding perms
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Add inserts perms into the set
func (s PermissionSet) Add(perms ...Permission) {
	for _, p := range perms {
		s[p] = struct{}{}
	}
}

// Contains reports whether p is in the set
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// ContainsAll reports whether every permission in required is in the set
func (s PermissionSet) ContainsAll(required ...Permission) bool {
	return len(s.Missing(required...)) == 0
}

// Missing returns the permissions from required that the set lacks, in input order
func (s PermissionSet) Missing(required ...Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !s.Contains(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Union returns a new set with the members of both sets
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Without returns a new set with perms removed
func (s PermissionSet) Without(perms ...Permission) PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	for _, p := range perms {
		delete(out, p)
	}
	return out
}

// Equal reports whether both sets hold the same permissions
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Contains(p) {
			return false
		}
	}
	return true
}

// Slice returns the permissions sorted by their string form
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Strings returns the sorted string forms of the permissions
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

// MarshalJSON encodes the set as a sorted array of "resource:action" strings
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes and validates an array of permission strings
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	parsed, err := ParsePermissions(values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer; sets are persisted as JSON text
func (s PermissionSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON text columns
func (s *PermissionSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = NewPermissionSet()
		return nil
	case string:
		return s.UnmarshalJSON([]byte(v))
	case []byte:
		return s.UnmarshalJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into rbac.PermissionSet", src)
	}
}
