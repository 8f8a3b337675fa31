package auth

// Role represents an operator role for role-based access control
type Role string

const (
	// RoleAdmin has full access to admin and control endpoints
	RoleAdmin Role = "admin"

	// RoleViewer has read-only access to health and stats endpoints
	RoleViewer Role = "viewer"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a recognized role
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role satisfies a required role.
// Admin satisfies everything, viewer only viewer.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
