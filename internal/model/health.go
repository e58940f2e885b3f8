package model

import "time"

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type ServiceStatus string

const (
	ServiceUp       ServiceStatus = "up"
	ServiceDown     ServiceStatus = "down"
	ServiceDegraded ServiceStatus = "degraded"
)

type DependencyStatus struct {
	Status    ServiceStatus `json:"status"`
	LatencyMs int64         `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
}

type ResourceMetrics struct {
	MemoryUsage       float64 `json:"memory_usage"`
	CPUUsage          float64 `json:"cpu_usage"`
	DiskUsage         float64 `json:"disk_usage"`
	ActiveConnections int     `json:"active_connections"`
	ResponseTime      float64 `json:"response_time"`
}

// SystemHealth is a point-in-time judgement, cached by the performance
// monitor and shared between callers until it expires.
type SystemHealth struct {
	Status    HealthStatus                `json:"status"`
	Timestamp time.Time                   `json:"timestamp"`
	Services  map[string]DependencyStatus `json:"services"`
	Metrics   ResourceMetrics             `json:"metrics"`
}

// OverallStatus folds dependency statuses: any down is unhealthy, any
// degraded is degraded, otherwise healthy.
func OverallStatus(services map[string]DependencyStatus) HealthStatus {
	status := StatusHealthy
	for _, svc := range services {
		switch svc.Status {
		case ServiceDown:
			return StatusUnhealthy
		case ServiceDegraded:
			status = StatusDegraded
		}
	}
	return status
}
