package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/admin-authz/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Bodies are never
// logged: they carry patient data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"ip", c.ClientIP(),
			"status", status,
			"duration", time.Since(start),
			"user_agent", c.Request.UserAgent(),
		}
		if p, ok := PrincipalFrom(c); ok {
			fields = append(fields, "user_id", p.UserID, "role", p.Role.String())
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			reqLog.Error(err, "Server error", fields...)
		case status >= 400:
			reqLog.Warn("Client error", fields...)
		default:
			reqLog.Info("Request processed", fields...)
		}
	}
}
