package auth

import "time"

// User represents an authenticatable account. Identity itself is owned here;
// what the user may do is owned by the authz packages.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
