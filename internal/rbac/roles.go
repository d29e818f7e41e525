package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsStaff reports whether the role can act on behalf of other users
// (e.g., poll someone else's event stream).
func IsStaff(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
