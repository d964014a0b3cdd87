package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleDoctor      = "doctor"
	RolePatient     = "patient"
	RoleClinicAdmin = "clinic_admin"
	RoleSuperAdmin  = "super_admin"
	RoleSupport     = "support" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleSupport }

// CallParticipantRoles may place and receive calls.
var CallParticipantRoles = []string{RoleDoctor, RolePatient}
