// Package policy owns the role to permission table. A Registry is built once
// at startup and is read-only afterwards, so it is safe for concurrent use
// without locking.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jwalitptl/admin-authz/internal/model"
)

var (
	ErrUnknownPermission  = errors.New("permission is not registered for any role")
	ErrMalformed          = errors.New("permission must be resource:action")
	ErrMissingCounterpart = errors.New("scoped permission has no unrestricted counterpart")
	ErrUnknownRole        = errors.New("unknown role")
)

// Registry answers role membership questions in O(1).
type Registry struct {
	roles map[model.Role]model.PermissionSet
	// all is the union of every role's set.
	all model.PermissionSet
}

// Build constructs a registry from a declarative table. The Admin role is
// granted every registered permission. Build fails on malformed names,
// unknown roles, and scoped permissions whose unrestricted counterpart is
// not granted to any non-Patient role.
func Build(table Table) (*Registry, error) {
	r := &Registry{
		roles: make(map[model.Role]model.PermissionSet, len(table)),
		all:   make(model.PermissionSet),
	}

	roles := make([]model.Role, 0, len(table))
	for role := range table {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	for _, role := range roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		set := make(model.PermissionSet, len(table[role]))
		for _, p := range table[role] {
			if !p.WellFormed() {
				return nil, fmt.Errorf("%w: %q", ErrMalformed, p)
			}
			set[p] = struct{}{}
			r.all[p] = struct{}{}
		}
		r.roles[role] = set
	}

	if err := r.checkCounterparts(); err != nil {
		return nil, err
	}

	admin := make(model.PermissionSet, len(r.all))
	for p := range r.all {
		admin[p] = struct{}{}
	}
	r.roles[model.RoleAdmin] = admin

	return r, nil
}

// MustBuild panics if the table is invalid.
func MustBuild(table Table) *Registry {
	r, err := Build(table)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) checkCounterparts() error {
	for _, p := range r.all.Sorted() {
		twin, scoped := p.AllCounterpart()
		if !scoped {
			continue
		}
		found := false
		for role, set := range r.roles {
			if role == model.RolePatient || role == model.RoleAdmin {
				continue
			}
			if set.Has(twin) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s needs %s", ErrMissingCounterpart, p, twin)
		}
	}
	return nil
}

// HasPermission reports whether role holds permission. Unknown roles and
// unregistered permissions are always false.
func (r *Registry) HasPermission(role model.Role, permission model.Permission) bool {
	set, ok := r.roles[role]
	if !ok {
		return false
	}
	return set.Has(permission)
}

// PermissionsFor returns the role's set. Callers must not modify it.
func (r *Registry) PermissionsFor(role model.Role) model.PermissionSet {
	if set, ok := r.roles[role]; ok {
		return set
	}
	return model.PermissionSet{}
}

// Registered reports whether any role holds permission.
func (r *Registry) Registered(permission model.Permission) bool {
	return r.all.Has(permission)
}

// Permissions lists every registered permission in lexical order.
func (r *Registry) Permissions() []model.Permission {
	return r.all.Sorted()
}

// Validate checks that every permission a call site declares is registered.
// It is run once at startup so a typo fails loudly instead of denying at
// runtime.
func (r *Registry) Validate(declared ...model.Permission) error {
	var missing []string
	seen := make(map[model.Permission]bool)
	for _, p := range declared {
		if seen[p] {
			continue
		}
		seen[p] = true
		if !r.Registered(p) {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrUnknownPermission, strings.Join(missing, ", "))
	}
	return nil
}

// ResolveAlias maps a legacy permission name to its canonical form. Names
// that are not aliases are returned unchanged.
func ResolveAlias(name string) model.Permission {
	if p, ok := legacyAliases[name]; ok {
		return p
	}
	return model.Permission(name)
}

// Lookup resolves aliases and returns the canonical permission if it is
// registered.
func (r *Registry) Lookup(name string) (model.Permission, bool) {
	p := ResolveAlias(name)
	if !r.Registered(p) {
		return "", false
	}
	return p, true
}

// LegacyPolicy expands an old role-string policy such as "ClinicianOnly" to
// the permission set of that role. A principal satisfies it when its own set
// contains every member.
func (r *Registry) LegacyPolicy(name string) (model.PermissionSet, bool) {
	role, ok := legacyRolePolicies[name]
	if !ok {
		return nil, false
	}
	return r.PermissionsFor(role), true
}

// SatisfiesLegacyPolicy reports whether role meets the expanded policy.
// Unknown policy names are never satisfied.
func (r *Registry) SatisfiesLegacyPolicy(role model.Role, name string) bool {
	required, ok := r.LegacyPolicy(name)
	if !ok {
		return false
	}
	return r.PermissionsFor(role).ContainsAll(required)
}
