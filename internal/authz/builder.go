package authz

import (
	"context"
	"errors"
)

// Builder materializes resolved permissions onto an identity.
type Builder struct {
	resolver *Resolver
}

// NewBuilder constructs a Builder.
func NewBuilder(resolver *Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// BuildOnce attaches one permission fact per resolved permission name to the
// identity. It is idempotent per identity: an identity already carrying
// permission facts (or already marked resolved, covering users with zero
// permissions) is returned untouched, so hosts may invoke the builder on
// every request without repeating resolution.
//
// An identity with no user-id fact passes through unchanged: nothing to
// resolve, not a failure. An unknown user resolves to zero permissions.
// Storage failures propagate; authorization cannot proceed without data.
func (b *Builder) BuildOnce(ctx context.Context, ident *Identity) error {
	if ident == nil {
		return nil
	}
	if ident.resolved || ident.HasKind(FactKindPermission) {
		return nil
	}
	userID, ok := ident.UserID()
	if !ok {
		return nil
	}

	set, err := b.resolver.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			ident.markResolved()
			return nil
		}
		return err
	}

	for name := range set {
		ident.Attach(Fact{Kind: FactKindPermission, Value: name})
	}
	ident.markResolved()
	return nil
}

// Restore attaches a previously cached permission set and marks the identity
// resolved, skipping storage entirely.
func (b *Builder) Restore(ident *Identity, set PermissionSet) {
	if ident == nil {
		return
	}
	for name := range set {
		ident.Attach(Fact{Kind: FactKindPermission, Value: name})
	}
	ident.markResolved()
}
