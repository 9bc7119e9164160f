package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func userIdent(id string) *Identity {
	return NewIdentity(Fact{Kind: FactKindUserID, Value: id})
}

func TestBuildOnceAttachesPermissionFacts(t *testing.T) {
	store := newMemoryStore()
	store.users[1] = true
	store.userRoles[1] = []int64{10}
	store.rolePerms[10] = []string{"class.grid1.add", "class.grid1.view"}

	builder := NewBuilder(NewResolver(store))
	ident := userIdent("1")

	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	require.Equal(t, []string{"class.grid1.add", "class.grid1.view"}, ident.Permissions())
}

func TestBuildOnceIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.users[1] = true
	store.userRoles[1] = []int64{10}
	store.rolePerms[10] = []string{"class.grid1.view"}

	builder := NewBuilder(NewResolver(store))
	ident := userIdent("1")

	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	first := ident.Facts()

	// Assignments change under us; the identity must not pick them up.
	store.rolePerms[10] = []string{"class.grid1.view", "class.grid2.view"}
	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	require.Equal(t, first, ident.Facts())
}

func TestBuildOnceIdempotentForZeroPermissionUser(t *testing.T) {
	store := newMemoryStore()
	store.users[2] = true

	builder := NewBuilder(NewResolver(store))
	ident := userIdent("2")

	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	require.Empty(t, ident.Permissions())

	store.mu.Lock()
	before := store.calls
	store.mu.Unlock()

	// No permission facts to detect, so the resolved flag must carry this.
	require.NoError(t, builder.BuildOnce(context.Background(), ident))

	store.mu.Lock()
	after := store.calls
	store.mu.Unlock()
	require.Equal(t, before, after)
}

func TestBuildOncePassThroughWithoutUserID(t *testing.T) {
	store := newMemoryStore()
	builder := NewBuilder(NewResolver(store))

	ident := NewIdentity()
	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	require.Empty(t, ident.Facts())
	require.Equal(t, 0, store.calls)

	require.NoError(t, builder.BuildOnce(context.Background(), nil))
}

func TestBuildOnceUnknownUserYieldsZeroPermissions(t *testing.T) {
	builder := NewBuilder(NewResolver(newMemoryStore()))
	ident := userIdent("404")

	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	require.Empty(t, ident.Permissions())
}

func TestBuildOnceStorageFailurePropagates(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("db down")

	builder := NewBuilder(NewResolver(store))
	ident := userIdent("1")

	require.Error(t, builder.BuildOnce(context.Background(), ident))
	require.False(t, ident.resolved)
}

func TestRestoreSkipsStorage(t *testing.T) {
	store := newMemoryStore()
	builder := NewBuilder(NewResolver(store))
	ident := userIdent("1")

	builder.Restore(ident, NewPermissionSet("class.grid1.view"))
	require.Equal(t, []string{"class.grid1.view"}, ident.Permissions())

	require.NoError(t, builder.BuildOnce(context.Background(), ident))
	require.Equal(t, 0, store.calls)
}

func TestAttachIsMonotonic(t *testing.T) {
	ident := NewIdentity()
	require.True(t, ident.Attach(Fact{Kind: FactKindPermission, Value: "a"}))
	require.False(t, ident.Attach(Fact{Kind: FactKindPermission, Value: "a"}))
	require.True(t, ident.Attach(Fact{Kind: FactKindPermission, Value: "b"}))
	require.Len(t, ident.Facts(), 2)
}
