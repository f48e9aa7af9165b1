package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	auditHandler "github.com/jwalitptl/admin-authz/internal/handler/audit"
	"github.com/jwalitptl/admin-authz/internal/handler/health"
	"github.com/jwalitptl/admin-authz/internal/handler/prometheus"
	"github.com/jwalitptl/admin-authz/internal/middleware"
	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/policy"
	"github.com/jwalitptl/admin-authz/pkg/logger"
)

// route is a protected endpoint and the permissions that admit it. Any one
// of perms is enough.
type route struct {
	method  string
	path    string
	perms   []model.Permission
	handler gin.HandlerFunc
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	registry *policy.Registry
	limiter  *middleware.RateLimiter
	log      *logger.Logger
	auditH   *auditHandler.Handler
	healthH  *health.Handler
	metricsH *prometheus.Handler
}

type Deps struct {
	Logger    *logger.Logger
	Auth      *middleware.AuthMiddleware
	Registry  *policy.Registry
	RateLimit middleware.RateLimiterConfig
	Audit     *auditHandler.Handler
	Health    *health.Handler
	// Metrics is optional.
	Metrics *prometheus.Handler
}

func NewRouter(d Deps) *Router {
	return &Router{
		engine:   gin.New(),
		auth:     d.Auth,
		registry: d.Registry,
		limiter:  middleware.NewRateLimiter(d.RateLimit),
		log:      d.Logger,
		auditH:   d.Audit,
		healthH:  d.Health,
		metricsH: d.Metrics,
	}
}

func (r *Router) routes() []route {
	return []route{
		{http.MethodGet, "/audit/logs", []model.Permission{model.PermAuditView}, r.auditH.ListLogs},
		{http.MethodGet, "/audit/logs/:id", []model.Permission{model.PermAuditView}, r.auditH.GetLog},
		{http.MethodGet, "/audit/export", []model.Permission{model.PermAuditExport}, r.auditH.ExportLogs},
	}
}

// Setup installs the middleware chain and every route. It fails when a
// route names a permission the registry does not know, so a typo stops the
// process at startup instead of denying every request.
func (r *Router) Setup() error {
	routes := r.routes()

	var declared []model.Permission
	for _, rt := range routes {
		declared = append(declared, rt.perms...)
	}
	if err := r.registry.Validate(declared...); err != nil {
		return fmt.Errorf("route permissions: %w", err)
	}

	r.engine.Use(
		middleware.Recovery(r.log),
		middleware.RequestID(),
		middleware.ErrorHandler(r.log),
		middleware.Logger(r.log),
	)
	if r.metricsH != nil {
		r.engine.Use(r.metricsH.Middleware())
		r.engine.GET("/metrics", r.metricsH.Handler())
	}
	r.engine.Use(r.limiter.RateLimit())

	r.healthH.RegisterRoutes(r.engine)

	api := r.engine.Group("/api/v1", r.auth.Authenticate(), middleware.AuditContext())
	for _, rt := range routes {
		api.Handle(rt.method, rt.path, r.auth.RequirePermission(rt.perms...), rt.handler)
	}
	return nil
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
