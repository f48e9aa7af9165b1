package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/admin-authz/internal/authz"
	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/service/audit"
	"github.com/jwalitptl/admin-authz/pkg/auth"
	apperrors "github.com/jwalitptl/admin-authz/pkg/errors"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

const (
	ContextPrincipal = "principal"
	ContextDecision  = "authz_decision"
)

type AuthMiddleware struct {
	verifier  auth.Verifier
	evaluator *authz.Evaluator
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
}

// NewAuthMiddleware wires authentication and the route-entry gate. A nil
// recorder disables auditing of denied mutations.
func NewAuthMiddleware(verifier auth.Verifier, evaluator *authz.Evaluator, recorder *audit.Recorder, m *metrics.Metrics) *AuthMiddleware {
	if m == nil {
		m = metrics.NewNop()
	}
	return &AuthMiddleware{
		verifier:  verifier,
		evaluator: evaluator,
		recorder:  recorder,
		metrics:   m,
	}
}

// Authenticate verifies the bearer token and stores the principal.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.Unauthorized(fmt.Errorf("missing authorization header")))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperrors.Unauthorized(fmt.Errorf("invalid authorization format")))
			return
		}

		principal, err := m.verifier.Verify(parts[1])
		if err != nil {
			abort(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Next()
	}
}

// RequirePermission is the route-entry gate. Any of perms may satisfy it,
// e.g. view_all or view_own. Scoped permissions pass as Indeterminate and
// the handler performs the ownership check once the resource is loaded.
func (m *AuthMiddleware) RequirePermission(perms ...model.Permission) gin.HandlerFunc {
	if len(perms) == 0 {
		panic("RequirePermission needs at least one permission")
	}

	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			abort(c, apperrors.Unauthorized(nil))
			return
		}

		d := m.evaluator.EvaluateAny(principal, nil, perms...)
		m.metrics.Decisions.WithLabelValues(d.Effect.String(), d.Stage.String()).Inc()

		if err := d.Gate(); err != nil {
			m.recordDenied(c, perms[0].Resource())
			abort(c, err)
			return
		}

		c.Set(ContextDecision, d)
		c.Next()
	}
}

// RequireLegacyPolicy guards routes still declared with a role policy such
// as "AdminOnly".
func (m *AuthMiddleware) RequireLegacyPolicy(name string) gin.HandlerFunc {
	if _, ok := m.evaluator.Registry().LegacyPolicy(name); !ok {
		panic(fmt.Sprintf("unknown legacy policy %q", name))
	}

	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			abort(c, apperrors.Unauthorized(nil))
			return
		}

		if !m.evaluator.Registry().SatisfiesLegacyPolicy(principal.Role, name) {
			m.metrics.Decisions.WithLabelValues(authz.Deny.String(), authz.StageRole.String()).Inc()
			m.recordDenied(c, "")
			abort(c, apperrors.Forbidden(fmt.Errorf("legacy policy %s", name)))
			return
		}

		m.metrics.Decisions.WithLabelValues(authz.Allow.String(), authz.StageRole.String()).Inc()
		c.Next()
	}
}

func (m *AuthMiddleware) recordDenied(c *gin.Context, entityName string) {
	if m.recorder == nil || !model.AuditedMethod(c.Request.Method) {
		return
	}
	if entityName == "" {
		entityName = routeEntity(c)
	}
	m.recorder.RecordAsync(c.Request.Context(), AuditMutation(c, entityName).Entry(model.AuditOutcomeDenied))
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

// DecisionFrom returns the route-entry decision. Handlers of scoped routes
// check it for Indeterminate before loading the resource.
func DecisionFrom(c *gin.Context) (authz.Decision, bool) {
	v, ok := c.Get(ContextDecision)
	if !ok {
		return authz.Decision{}, false
	}
	d, ok := v.(authz.Decision)
	return d, ok
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
