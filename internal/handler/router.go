package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teachhub/telemetry/internal/config"
	"github.com/teachhub/telemetry/internal/middleware"
	"github.com/teachhub/telemetry/internal/service"
)

type RouterDeps struct {
	Config    *config.Config
	Errors    *service.ErrorTracker
	Perf      *service.PerformanceMonitor
	Analytics *service.UserAnalyticsTracker
	Alerts    *service.AlertHub
	Archive   ArchiveReader
	Limiter   *middleware.ClientLimiter

	// Idempotency deduplicates retried ingestion requests; nil disables it.
	Idempotency middleware.IdempotencyStore
}

func NewRouter(d RouterDeps) *gin.Engine {
	cfg := d.Config
	r := gin.Default()

	skip := []string{"/health"}
	if cfg.Metrics.Enabled {
		skip = append(skip, cfg.Metrics.Path)
	}
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.TelemetryMiddleware(d.Perf, d.Errors, skip...))
	r.Use(middleware.ErrorHandler())

	health := NewHealthHandler(d.Perf)
	r.GET("/health", health.Health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	ingest := NewIngestHandler(d.Analytics, d.Errors)
	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(d.Limiter))
	v1.Use(middleware.IdempotencyMiddleware(d.Idempotency))
	{
		v1.POST("/events", ingest.TrackEvents)
		v1.POST("/errors", ingest.ReportError)
	}

	reports := NewReportingHandler(d.Errors, d.Perf, d.Analytics, d.Archive)
	alerts := NewAlertHandler(d.Alerts)
	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.GET("/errors", reports.RecentErrors)
		admin.GET("/errors/stats", reports.ErrorStats)
		admin.GET("/errors/archive", reports.ArchivedErrors)
		admin.GET("/performance/stats", reports.PerformanceStats)
		admin.GET("/performance/metrics", reports.Metrics)
		admin.GET("/health", health.Health)
		admin.GET("/analytics/summary", reports.AnalyticsSummary)
		admin.GET("/analytics/dau", reports.DailyActiveUsers)
		admin.GET("/analytics/journey/:userId", reports.UserJourney)
		admin.GET("/alerts/stream", alerts.Stream)
	}
	return r
}
