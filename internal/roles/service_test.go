package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accessd/accessd/internal/shared"
)

type memoryRoleRepo struct {
	roles       map[int64]Role
	assignments map[int64]map[int64]bool // roleID -> permission set
	userRoles   map[int64]map[int64]bool // userID -> role set
	knownPerms  map[int64]bool
	nextID      int64
	replaceErr  error
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles:       make(map[int64]Role),
		assignments: make(map[int64]map[int64]bool),
		userRoles:   make(map[int64]map[int64]bool),
		knownPerms:  make(map[int64]bool),
	}
}

func (r *memoryRoleRepo) seedRole(name string) Role {
	r.nextID++
	role := Role{ID: r.nextID, Name: name}
	r.roles[role.ID] = role
	r.assignments[role.ID] = make(map[int64]bool)
	return role
}

func (r *memoryRoleRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRoleRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, ErrDuplicateName
		}
	}
	r.nextID++
	role := Role{ID: r.nextID, Name: name, Description: description}
	r.roles[role.ID] = role
	r.assignments[role.ID] = make(map[int64]bool)
	return role, nil
}

func (r *memoryRoleRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	role.Name = name
	role.Description = description
	r.roles[id] = role
	return role, nil
}

func (r *memoryRoleRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(r.roles, id)
	delete(r.assignments, id)
	for _, set := range r.userRoles {
		delete(set, id)
	}
	return nil
}

func (r *memoryRoleRepo) PermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	set, ok := r.assignments[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRoleRepo) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	if _, ok := r.assignments[roleID]; !ok {
		return ErrRoleNotFound
	}
	next := make(map[int64]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		if !r.knownPerms[id] {
			return fmt.Errorf("%w: id %d", ErrUnknownPermission, id)
		}
		next[id] = true
	}
	r.assignments[roleID] = next
	return nil
}

func (r *memoryRoleRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[int64]bool)
	}
	r.userRoles[userID][roleID] = true
	return nil
}

func (r *memoryRoleRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	delete(r.userRoles[userID], roleID)
	return nil
}

func (r *memoryRoleRepo) UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	for userID, set := range r.userRoles {
		if set[roleID] {
			ids = append(ids, userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

var _ RepositoryPort = (*memoryRoleRepo)(nil)

type recordingRefresher struct {
	roleIDs []int64
	userIDs []int64
	err     error
}

func (r *recordingRefresher) RefreshRole(ctx context.Context, roleID int64) error {
	if r.err != nil {
		return r.err
	}
	r.roleIDs = append(r.roleIDs, roleID)
	return nil
}

func (r *recordingRefresher) RefreshUser(ctx context.Context, userID int64) error {
	if r.err != nil {
		return r.err
	}
	r.userIDs = append(r.userIDs, userID)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestReplacePermissionsRejectsUnknownIDs(t *testing.T) {
	repo := newMemoryRoleRepo()
	role := repo.seedRole("editor")
	repo.knownPerms[10] = true
	repo.knownPerms[11] = true
	require.NoError(t, repo.ReplacePermissions(context.Background(), role.ID, []int64{10}))

	svc := NewService(repo, nil, nil, nil)
	err := svc.ReplacePermissions(context.Background(), role.ID, []int64{10, 11, 999})
	require.ErrorIs(t, err, ErrUnknownPermission)

	// Nothing changed: the replace is all or nothing.
	got, listErr := repo.PermissionIDs(context.Background(), role.ID)
	require.NoError(t, listErr)
	require.Equal(t, []int64{10}, got)
}

func TestReplacePermissionsSwapsSet(t *testing.T) {
	repo := newMemoryRoleRepo()
	role := repo.seedRole("editor")
	for _, id := range []int64{10, 11, 12} {
		repo.knownPerms[id] = true
	}
	require.NoError(t, repo.ReplacePermissions(context.Background(), role.ID, []int64{10, 11}))

	refresher := &recordingRefresher{}
	svc := NewService(repo, refresher, nil, nil)
	require.NoError(t, svc.ReplacePermissions(context.Background(), role.ID, []int64{11, 12}))

	got, err := repo.PermissionIDs(context.Background(), role.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{11, 12}, got)
	require.Equal(t, []int64{role.ID}, refresher.roleIDs)
}

func TestReplacePermissionsUnknownRole(t *testing.T) {
	svc := NewService(newMemoryRoleRepo(), nil, nil, nil)
	err := svc.ReplacePermissions(context.Background(), 404, []int64{1})
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestReplacePermissionsRepoFailureSkipsRefresh(t *testing.T) {
	repo := newMemoryRoleRepo()
	role := repo.seedRole("editor")
	repo.replaceErr = errors.New("boom")

	refresher := &recordingRefresher{}
	svc := NewService(repo, refresher, nil, nil)
	require.Error(t, svc.ReplacePermissions(context.Background(), role.ID, nil))
	require.Empty(t, refresher.roleIDs)
}

func TestAssignRoleUnknownRole(t *testing.T) {
	repo := newMemoryRoleRepo()
	refresher := &recordingRefresher{}
	svc := NewService(repo, refresher, nil, nil)

	err := svc.AssignRole(context.Background(), 1, 404)
	require.ErrorIs(t, err, ErrRoleNotFound)
	require.Empty(t, refresher.userIDs)
}

func TestAssignAndRemoveRoleRefreshUser(t *testing.T) {
	repo := newMemoryRoleRepo()
	role := repo.seedRole("viewer")
	refresher := &recordingRefresher{}
	audit := &recordingAudit{}
	svc := NewService(repo, refresher, audit, nil)

	require.NoError(t, svc.AssignRole(context.Background(), 7, role.ID))
	require.NoError(t, svc.RemoveRole(context.Background(), 7, role.ID))

	require.Equal(t, []int64{7, 7}, refresher.userIDs)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "user.role.assign", audit.logs[0].Action)
	require.Equal(t, "user.role.remove", audit.logs[1].Action)
}

func TestDeleteRoleTriggersRoleRefresh(t *testing.T) {
	repo := newMemoryRoleRepo()
	role := repo.seedRole("temp")
	refresher := &recordingRefresher{}
	svc := NewService(repo, refresher, nil, nil)

	require.NoError(t, svc.DeleteRole(context.Background(), role.ID))
	require.Equal(t, []int64{role.ID}, refresher.roleIDs)
}

func TestRefreshFailureDoesNotSurface(t *testing.T) {
	repo := newMemoryRoleRepo()
	role := repo.seedRole("editor")
	repo.knownPerms[10] = true

	refresher := &recordingRefresher{err: errors.New("queue down")}
	svc := NewService(repo, refresher, nil, nil)

	// The write committed; a refresh enqueue failure stays internal.
	require.NoError(t, svc.ReplacePermissions(context.Background(), role.ID, []int64{10}))
}

func TestCreateRoleValidation(t *testing.T) {
	svc := NewService(newMemoryRoleRepo(), nil, nil, nil)
	_, err := svc.CreateRole(context.Background(), "  ", "")
	require.Error(t, err)

	created, err := svc.CreateRole(context.Background(), " ops ", " runs things ")
	require.NoError(t, err)
	require.Equal(t, "ops", created.Name)
	require.Equal(t, "runs things", created.Description)
}
