package roles

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/accessd/accessd/internal/shared"
)

// ClaimsRefresher invalidates cached authorization claims after assignment
// changes so affected sessions re-resolve on their next request. Enqueue
// failures are logged, never surfaced: the stale-cache window is an accepted
// tradeoff and the write itself has already committed.
type ClaimsRefresher interface {
	RefreshRole(ctx context.Context, roleID int64) error
	RefreshUser(ctx context.Context, userID int64) error
}

// AuditPort records assignment changes for later review.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role and assignment business logic.
type Service struct {
	repo      RepositoryPort
	refresher ClaimsRefresher
	audit     AuditPort
	logger    *slog.Logger
}

// NewService builds a Service instance. refresher and audit may be nil when
// no refresh hook or audit trail is configured.
func NewService(repo RepositoryPort, refresher ClaimsRefresher, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, refresher: refresher, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role and everything hanging off it.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.delete", "role", strconv.FormatInt(id, 10), nil)
	s.refreshRole(ctx, id)
	return nil
}

// PermissionIDs returns the permission ids assigned to a role.
func (s *Service) PermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.repo.PermissionIDs(ctx, roleID)
}

// ReplacePermissions atomically replaces a role's assignment set with exactly
// permissionIDs. Duplicates in the input collapse; unknown ids reject the
// whole call with ErrUnknownPermission.
func (s *Service) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := s.repo.ReplacePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.permissions.replace", "role", strconv.FormatInt(roleID, 10),
		map[string]any{"permission_ids": permissionIDs})
	s.refreshRole(ctx, roleID)
	return nil
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.role.assign", "user", strconv.FormatInt(userID, 10),
		map[string]any{"role_id": roleID})
	s.refreshUser(ctx, userID)
	return nil
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.role.remove", "user", strconv.FormatInt(userID, 10),
		map[string]any{"role_id": roleID})
	s.refreshUser(ctx, userID)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) refreshRole(ctx context.Context, roleID int64) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.RefreshRole(ctx, roleID); err != nil && s.logger != nil {
		s.logger.Warn("enqueue claims refresh", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
}

func (s *Service) refreshUser(ctx context.Context, userID int64) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.RefreshUser(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("enqueue claims refresh", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
