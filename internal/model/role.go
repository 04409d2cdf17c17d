package model

import "strings"

// Role is the authorization role attached to a user profile.  It controls
// whether the user may write records and whether the administrative
// surface is reachable.  The zero value is not a valid role; callers that
// need a safe default should use RoleViewer.
type Role string

const (
	RoleAdmin       Role = "admin"       // full access including user provisioning
	RoleContributor Role = "contributor" // may create, edit and delete records
	RoleViewer      Role = "viewer"      // read-only access
)

// Roles lists every valid role in ascending privilege order.
var Roles = []Role{RoleViewer, RoleContributor, RoleAdmin}

// ParseRole normalizes s and reports whether it names one of the three
// valid roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleContributor, RoleViewer:
		return r, true
	}
	return "", false
}

// RoleOrViewer returns the role named by s, or RoleViewer when s is empty
// or unknown.  Profile documents written by older clients may carry no role.
func RoleOrViewer(s string) Role {
	if r, ok := ParseRole(s); ok {
		return r
	}
	return RoleViewer
}

// CanWrite reports whether the role may create, edit or delete records.
func (r Role) CanWrite() bool { return r == RoleAdmin || r == RoleContributor }

// IsAdmin reports whether the role may use the administrative surface.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

func (r Role) String() string { return string(r) }
