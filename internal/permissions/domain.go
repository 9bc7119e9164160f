package permissions

import (
	"errors"
	"time"
)

// Permission represents an atomic capability arranged in a display hierarchy.
// The parent relation groups permissions for editing UIs; it does not grant
// access transitively.
type Permission struct {
	ID          int64
	Name        string
	DisplayName string
	ElementType string
	ParentID    *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Element type tags used by rendering layers to pick a widget.
const (
	ElementPage   = "Page"
	ElementGrid   = "Grid"
	ElementButton = "Button"
)

var (
	// ErrNotFound indicates the permission does not exist.
	ErrNotFound = errors.New("permissions: not found")
	// ErrDuplicateName indicates the machine name is already taken.
	ErrDuplicateName = errors.New("permissions: duplicate name")
	// ErrParentNotFound indicates the referenced parent does not exist.
	ErrParentNotFound = errors.New("permissions: parent not found")
	// ErrHierarchyCycle indicates a reparent would create a cycle.
	ErrHierarchyCycle = errors.New("permissions: hierarchy cycle")
	// ErrHasChildren indicates a delete target still has child permissions.
	ErrHasChildren = errors.New("permissions: has children")
)
