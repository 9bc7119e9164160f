package roles

import (
	"errors"
	"time"
)

// Role represents a named bundle of permissions assignable to users.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var (
	// ErrRoleNotFound indicates the referenced role does not exist.
	ErrRoleNotFound = errors.New("roles: role not found")
	// ErrUnknownPermission indicates a replace referenced a nonexistent
	// permission id. The whole replace is rejected, never partially applied.
	ErrUnknownPermission = errors.New("roles: unknown permission")
	// ErrDuplicateName indicates the role name is already taken.
	ErrDuplicateName = errors.New("roles: duplicate name")
)
