// Package authz implements permission resolution and authorization decisions.
//
// Resolution runs at most once per materialized identity: the builder checks
// the identity's fact set before touching storage, and resolved claims are
// cached per session so later requests skip resolution entirely.
package authz

import (
	"sort"
	"strconv"
)

// Fact kinds attached to an identity.
const (
	// FactKindUserID is the stable identifier fact of an authenticated user.
	FactKindUserID = "UserID"
	// FactKindPermission marks one granted permission name.
	FactKindPermission = "Permission"
)

// Fact is a named, valued claim attached to a principal.
type Fact struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Identity is the fact bag of one principal. It is scoped to a single
// request/session materialization and is not safe for concurrent mutation;
// snapshot it into a Context before fanning out.
type Identity struct {
	facts    []Fact
	index    map[Fact]struct{}
	resolved bool
}

// NewIdentity builds an identity carrying the given facts.
func NewIdentity(facts ...Fact) *Identity {
	id := &Identity{index: make(map[Fact]struct{}, len(facts))}
	for _, f := range facts {
		id.Attach(f)
	}
	return id
}

// Attach adds a fact. Attachment is monotonic: facts are never removed and
// duplicate kind/value pairs collapse. Reports whether the fact was new.
func (id *Identity) Attach(f Fact) bool {
	if id.index == nil {
		id.index = make(map[Fact]struct{})
	}
	if _, ok := id.index[f]; ok {
		return false
	}
	id.index[f] = struct{}{}
	id.facts = append(id.facts, f)
	return true
}

// Facts returns a copy of the attached facts.
func (id *Identity) Facts() []Fact {
	out := make([]Fact, len(id.facts))
	copy(out, id.facts)
	return out
}

// HasKind reports whether any fact of the given kind is attached.
func (id *Identity) HasKind(kind string) bool {
	for _, f := range id.facts {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// UserID extracts the numeric user identifier fact.
func (id *Identity) UserID() (int64, bool) {
	for _, f := range id.facts {
		if f.Kind == FactKindUserID {
			uid, err := strconv.ParseInt(f.Value, 10, 64)
			if err != nil {
				return 0, false
			}
			return uid, true
		}
	}
	return 0, false
}

// Permissions returns the permission fact values, sorted.
func (id *Identity) Permissions() []string {
	var names []string
	for _, f := range id.facts {
		if f.Kind == FactKindPermission {
			names = append(names, f.Value)
		}
	}
	sort.Strings(names)
	return names
}

func (id *Identity) markResolved() {
	id.resolved = true
}

// Context is an immutable snapshot of an identity's permission facts. It is
// safe for arbitrary concurrent evaluation without synchronization.
type Context struct {
	perms map[string]struct{}
}

// NewContext snapshots the identity's permission facts.
func NewContext(id *Identity) Context {
	perms := make(map[string]struct{})
	if id != nil {
		for _, f := range id.facts {
			if f.Kind == FactKindPermission {
				perms[f.Value] = struct{}{}
			}
		}
	}
	return Context{perms: perms}
}

// ContextFromNames builds a Context directly from permission names.
func ContextFromNames(names ...string) Context {
	perms := make(map[string]struct{}, len(names))
	for _, n := range names {
		perms[n] = struct{}{}
	}
	return Context{perms: perms}
}

// Has reports whether the context holds the named permission.
func (c Context) Has(name string) bool {
	_, ok := c.perms[name]
	return ok
}

// Permissions returns the held permission names, sorted.
func (c Context) Permissions() []string {
	names := make([]string, 0, len(c.perms))
	for n := range c.perms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
