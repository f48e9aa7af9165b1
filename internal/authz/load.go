package authz

import (
	"context"
	"errors"

	"github.com/jwalitptl/admin-authz/internal/model"
	apperrors "github.com/jwalitptl/admin-authz/pkg/errors"
)

// OwnerResolver is satisfied by *ownership.Resolver.
type OwnerResolver interface {
	ResolveOwners(entity model.EntityType, resource interface{}) (model.ResourceOwnership, error)
}

// ErrNotFound is returned by loaders when the row does not exist.
var ErrNotFound = errors.New("record not found")

// Load performs the two-pass check for a single resource: the role gate
// before any I/O, the load, then the ownership gate. A role that could
// never see the resource is rejected without calling load. A loader
// returning ErrNotFound and an ownership deny produce the same NotFound
// error.
func Load[T any](
	ctx context.Context,
	e *Evaluator,
	resolver OwnerResolver,
	p model.Principal,
	entity model.EntityType,
	load func(context.Context) (T, error),
	permissions ...model.Permission,
) (T, error) {
	var zero T

	gate := e.EvaluateAny(p, nil, permissions...)
	if gate.Effect == Deny {
		return zero, gate.Err()
	}

	res, err := load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, apperrors.NotFound(string(entity), nil)
		}
		return zero, err
	}
	if gate.Effect == Allow {
		return res, nil
	}

	owners, err := resolver.ResolveOwners(entity, res)
	if err != nil {
		return zero, apperrors.Internal(err)
	}
	if err := e.EvaluateAny(p, &owners, permissions...).Err(); err != nil {
		if errors.Is(err, apperrors.ErrNotFoundKind) {
			return zero, apperrors.NotFound(string(entity), ErrOwnershipDenied)
		}
		return zero, err
	}
	return res, nil
}
