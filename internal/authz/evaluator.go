// Package authz is the single authorization decision point. Evaluation is a
// pure function of the principal, the permission, optional ownership data and
// the immutable policy registry.
package authz

import (
	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/policy"
)

// Evaluator decides permissions against a registry.
type Evaluator struct {
	registry *policy.Registry
	strict   bool
}

type Option func(*Evaluator)

// WithStrict makes consuming an Indeterminate decision as final panic.
// Builds tagged authzdebug are strict by default.
func WithStrict(strict bool) Option {
	return func(e *Evaluator) {
		e.strict = strict
	}
}

func NewEvaluator(registry *policy.Registry, opts ...Option) *Evaluator {
	e := &Evaluator{registry: registry, strict: debugAssertions}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the underlying registry for startup validation.
func (e *Evaluator) Registry() *policy.Registry {
	return e.registry
}

// Evaluate decides whether principal may use permission.
//
//  1. Role lacks the permission: Deny, no further checks.
//  2. Scoped permission with ownership: Allow iff the principal owns it.
//  3. Scoped permission without ownership: Indeterminate.
//  4. Unscoped permission: the role check alone decides.
func (e *Evaluator) Evaluate(p model.Principal, permission model.Permission, ownership *model.ResourceOwnership) Decision {
	d := Decision{Permission: permission, Stage: StageRole, strict: e.strict}

	if !e.registry.HasPermission(p.Role, permission) {
		d.Effect = Deny
		return d
	}
	if !permission.Scoped() {
		d.Effect = Allow
		return d
	}
	if ownership == nil {
		d.Effect = Indeterminate
		return d
	}

	d.Stage = StageOwnership
	if ownership.Owns(p) {
		d.Effect = Allow
	} else {
		d.Effect = Deny
	}
	return d
}

// EvaluateAny evaluates alternatives such as view_all and view_own for the
// same endpoint. Any Allow wins. Otherwise Indeterminate wins over Deny, and
// a deny is reported at ownership stage if any alternative passed the role
// gate.
func (e *Evaluator) EvaluateAny(p model.Principal, ownership *model.ResourceOwnership, permissions ...model.Permission) Decision {
	result := Decision{Effect: Deny, Stage: StageRole, strict: e.strict}
	if len(permissions) > 0 {
		result.Permission = permissions[0]
	}

	for _, perm := range permissions {
		d := e.Evaluate(p, perm, ownership)
		switch d.Effect {
		case Allow:
			return d
		case Indeterminate:
			result = d
		case Deny:
			if result.Effect == Deny && d.Stage == StageOwnership {
				result = d
			}
		}
	}
	return result
}

// Gate is the route-entry check. It never needs a resource.
func (e *Evaluator) Gate(p model.Principal, permission model.Permission) Decision {
	return e.Evaluate(p, permission, nil)
}
