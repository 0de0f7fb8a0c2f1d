package domain

import "errors"

// ErrIdentityNotFound is returned by identity resolvers when a subject is unknown.
var ErrIdentityNotFound = errors.New("identity not found")

// Role is a granted authority carried in issued tokens.
type Role string

const (
	RoleUser      Role = "ROLE_USER"
	RoleAdmin     Role = "ROLE_ADMIN"
	RoleTherapist Role = "ROLE_THERAPIST"
)

// DefaultRole is embedded when an identity resolves to no explicit role.
const DefaultRole = RoleUser

// Known reports whether the role belongs to the recognised role set.
func (r Role) Known() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleTherapist:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
