package authz

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/admin-authz/internal/model"
	apperrors "github.com/jwalitptl/admin-authz/pkg/errors"
)

// ErrOwnershipDenied is the hidden cause behind a NotFound produced by an
// ownership deny. It lets auditing tell a denial from a missing row without
// exposing the difference to the caller.
var ErrOwnershipDenied = errors.New("ownership denied")

// Effect is the outcome of an evaluation.
type Effect int

const (
	Deny Effect = iota
	Allow
	// Indeterminate means a scoped permission was checked without ownership
	// data. The caller must re-evaluate once the resource is loaded.
	Indeterminate
)

func (e Effect) String() string {
	switch e {
	case Allow:
		return "allow"
	case Indeterminate:
		return "indeterminate"
	default:
		return "deny"
	}
}

// Stage records which check produced the decision.
type Stage int

const (
	StageRole Stage = iota
	StageOwnership
)

func (s Stage) String() string {
	if s == StageOwnership {
		return "ownership"
	}
	return "role"
}

// Decision is an immutable evaluation result.
type Decision struct {
	Effect     Effect
	Stage      Stage
	Permission model.Permission
	strict     bool
}

func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

func (d Decision) String() string {
	return fmt.Sprintf("%s %s at %s stage", d.Effect, d.Permission, d.Stage)
}

// Gate consumes the decision at route entry, before any resource is loaded.
// Allow and Indeterminate both let the request through; the handler owns
// the second pass for Indeterminate.
func (d Decision) Gate() error {
	if d.Effect == Deny {
		return apperrors.Forbidden(fmt.Errorf("role gate: %s", d.Permission))
	}
	return nil
}

// Err consumes the decision as final. A role-stage deny is Forbidden, an
// ownership-stage deny is NotFound so the resource's existence is not
// confirmed. Consuming Indeterminate here is a programming error: it fails
// closed, and panics when the evaluator is strict.
func (d Decision) Err() error {
	switch d.Effect {
	case Allow:
		return nil
	case Indeterminate:
		err := apperrors.Indeterminate(string(d.Permission))
		if d.strict {
			panic(err)
		}
		return err
	}
	if d.Stage == StageOwnership {
		// same message as a missing row of this resource
		return apperrors.NotFound(d.Permission.Resource(), ErrOwnershipDenied)
	}
	return apperrors.Forbidden(fmt.Errorf("role gate: %s", d.Permission))
}
