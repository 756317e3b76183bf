package auth

import "slices"

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermNodeRead     Permission = "node:read"
	PermNodeWrite    Permission = "node:write"
	PermMethodCall   Permission = "method:call"
	PermParamWrite   Permission = "param:write"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermNodeRead,
	},
	RoleOperator: {
		PermNodeRead,
		PermNodeWrite,
		PermMethodCall,
	},
	RoleAdmin: {
		PermNodeRead,
		PermNodeWrite,
		PermMethodCall,
		PermParamWrite,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
