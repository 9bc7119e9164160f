package permissions

import (
	"context"
	"errors"
	"strings"
)

// Service handles permission hierarchy business rules.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all permissions ordered by name.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// Get fetches one permission.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// Create validates and inserts a new permission definition.
func (s *Service) Create(ctx context.Context, p Permission) (Permission, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.Name == "" {
		return Permission{}, errors.New("permissions: name required")
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	if p.ParentID != nil {
		if _, err := s.repo.GetPermission(ctx, *p.ParentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Permission{}, ErrParentNotFound
			}
			return Permission{}, err
		}
	}
	return s.repo.CreatePermission(ctx, p)
}

// Update renames or reparents a permission. Reparenting is validated against
// the current hierarchy so the parent relation stays a forest.
func (s *Service) Update(ctx context.Context, p Permission) (Permission, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.Name == "" {
		return Permission{}, errors.New("permissions: name required")
	}
	if p.ParentID != nil {
		if *p.ParentID == p.ID {
			return Permission{}, ErrHierarchyCycle
		}
		if err := s.checkCycle(ctx, p.ID, *p.ParentID); err != nil {
			return Permission{}, err
		}
	}
	return s.repo.UpdatePermission(ctx, p)
}

// Delete removes a leaf permission and its role assignments.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}

// checkCycle walks the ancestor chain from the proposed parent. Reaching the
// permission being updated means the reparent would close a loop. This reads
// an unlocked snapshot, so it is a fast pre-check only; the repository runs
// the same walk again under row locks before committing.
func (s *Service) checkCycle(ctx context.Context, id, parentID int64) error {
	all, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return err
	}
	parents := make(map[int64]*int64, len(all))
	for _, p := range all {
		parents[p.ID] = p.ParentID
	}
	if _, ok := parents[parentID]; !ok {
		return ErrParentNotFound
	}
	if closesLoop(parents, id, parentID) {
		return ErrHierarchyCycle
	}
	return nil
}
