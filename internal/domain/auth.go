package domain

import "time"

// Session describes a freshly issued token returned to a caller.
type Session struct {
	Token     string
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
