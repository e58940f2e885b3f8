package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/service"
)

type HealthHandler struct {
	perf *service.PerformanceMonitor
}

func NewHealthHandler(perf *service.PerformanceMonitor) *HealthHandler {
	return &HealthHandler{perf: perf}
}

// Health answers 503 only when a dependency is down; degraded still
// serves 200 so load balancers keep the instance.
func (h *HealthHandler) Health(c *gin.Context) {
	snapshot := h.perf.GetSystemHealth(c.Request.Context())
	status := http.StatusOK
	if snapshot.Status == model.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, snapshot)
}
