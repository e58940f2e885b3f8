package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/config"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards the reporting routes with the configured admin key.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.JSON(http.StatusForbidden, gin.H{"code": "AUTH_FAILED", "message": "admin key not configured"})
			c.Abort()
			return
		}
		given := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(given), []byte(cfg.Auth.AdminKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "AUTH_FAILED", "message": "invalid admin key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
