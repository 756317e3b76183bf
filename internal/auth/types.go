package auth

import "errors"

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleViewer may browse and read the address space.
	RoleViewer Role = "viewer"

	// RoleOperator may also write variables and call methods.
	RoleOperator Role = "operator"

	// RoleAdmin has full control, including runtime parameters.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrInvalidRole  = errors.New("invalid role")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)
