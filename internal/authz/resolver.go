package authz

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// ErrUserNotFound indicates the resolution target does not exist. Callers on
// the read path treat it as "zero permissions", never as a request failure.
var ErrUserNotFound = errors.New("authz: user not found")

// PermissionSet is a user's effective permission names, deduplicated and
// unordered.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the members sorted, for stable serialization.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolver computes a user's effective permission set: the union, over all
// roles held by the user, of permission names directly assigned to each role.
// Hierarchy is a grouping concept only and never propagates access.
type Resolver struct {
	store Store
	group singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the effective permission set for userID. An unknown user
// yields ErrUserNotFound; a known user with no roles yields the empty set.
// Concurrent resolves for the same user collapse into one storage round-trip.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (PermissionSet, error) {
	key := strconv.FormatInt(userID, 10)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, userID int64) (PermissionSet, error) {
	exists, err := r.store.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	roleIDs, err := r.store.UserRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return PermissionSet{}, nil
	}

	names, err := r.store.PermissionNamesForRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(names...), nil
}
