package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/admin-authz/internal/service/audit"
)

const ContextAuditMutation = "audit_mutation"

// AuditContext captures who is calling and from where, once, so the gate
// and the handler record the same request attributes.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, _ := PrincipalFrom(c)
		c.Set(ContextAuditMutation, audit.Mutation{
			Principal: principal,
			Action:    c.Request.Method,
			IPAddress: c.ClientIP(),
		})
		c.Next()
	}
}

// AuditMutation describes the current request for the recorder. A numeric
// :id route parameter becomes the entity id.
func AuditMutation(c *gin.Context, entityName string) audit.Mutation {
	var mut audit.Mutation
	if v, ok := c.Get(ContextAuditMutation); ok {
		mut, _ = v.(audit.Mutation)
	} else {
		principal, _ := PrincipalFrom(c)
		mut = audit.Mutation{Principal: principal, Action: c.Request.Method, IPAddress: c.ClientIP()}
	}
	mut.EntityName = entityName
	if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
		mut.EntityID = &id
	}
	return mut
}

// routeEntity guesses the entity from the route, e.g. "/api/v1/surgeries/:id"
// gives "surgeries".
func routeEntity(c *gin.Context) string {
	segments := strings.Split(strings.Trim(c.FullPath(), "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := segments[i]; s != "" && !strings.HasPrefix(s, ":") && !strings.HasPrefix(s, "*") {
			return s
		}
	}
	return "unknown"
}
