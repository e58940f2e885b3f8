package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/pkg/metrics"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		metrics.LatencyBucket.WithLabelValues(routeOf(c), c.Request.Method).Observe(duration)
	}
}

// routeOf prefers the matched route template so that path parameters do
// not explode label cardinality.
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
