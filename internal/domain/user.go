package domain

import "time"

// User is an account able to obtain tokens. Roles are kept in grant order.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
}
