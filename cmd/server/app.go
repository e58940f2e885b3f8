package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/teachhub/telemetry/internal/config"
	"github.com/teachhub/telemetry/internal/handler"
	"github.com/teachhub/telemetry/internal/middleware"
	"github.com/teachhub/telemetry/internal/pkg/logger"
	"github.com/teachhub/telemetry/internal/pkg/sysstat"
	"github.com/teachhub/telemetry/internal/repository"
	"github.com/teachhub/telemetry/internal/scheduler"
	"github.com/teachhub/telemetry/internal/service"
)

// app is the composition root: every tracker is built here and handed to
// the router and the scheduler.
type app struct {
	cfg       *config.Config
	redis     *repository.RedisStore
	db        *sqlx.DB
	errors    *service.ErrorTracker
	perf      *service.PerformanceMonitor
	analytics *service.UserAnalyticsTracker
	alerts    *service.AlertHub
	scheduler *scheduler.Supervisor
	router    *gin.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, alerts: service.NewAlertHub(0)}
	tc := cfg.Telemetry

	// Redis is the shared store; without it every tracker runs on its buffer.
	// An unreachable Redis at boot is kept: the client redials and each store
	// call falls back on its own.
	var store service.TelemetryStore
	if cfg.Redis.Addr != "" {
		rs, err := repository.NewRedisStore(cfg)
		if err != nil {
			logger.Error("redis not reachable at startup, serving from in-process buffers until it is", "addr", cfg.Redis.Addr, "error", err)
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
		if rs != nil {
			a.redis = rs
			store = rs
		}
	}

	var archive *repository.PostgresErrorArchive
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			archive = repository.NewPostgresErrorArchive(db)
			if err := archive.EnsureSchema(context.Background()); err != nil {
				logger.Error("failed to prepare error archive schema", "error", err)
			}
			logger.Info("connected to postgres, critical errors will be archived")
			a.db = db
		} else {
			logger.Error("failed to connect to postgres, archive disabled", "error", err)
		}
	}

	var probes []service.HealthProbe
	var connections func() int
	if store != nil {
		probes = append(probes, service.NewStoreProbe(store, tc.StoreTimeout(), tc.HealthSlowProbe()))
		connections = a.redis.OpenConnections
	}
	if archive != nil {
		probes = append(probes, service.NewArchiveProbe(archive, tc.StoreTimeout(), tc.HealthSlowProbe()))
	}

	var errArchive service.ErrorArchive
	var archiveReader handler.ArchiveReader
	if archive != nil {
		errArchive = archive
		archiveReader = archive
	}

	a.errors = service.NewErrorTracker(store, errArchive, a.alerts, service.ErrorTrackerOptions{
		BufferSize:     tc.ErrorBufferSize,
		Retention:      config.Days(tc.ErrorRetentionDays),
		StoreTimeout:   tc.StoreTimeout(),
		WriteQueueSize: tc.WriteQueueSize,
		AlertThreshold: tc.AlertRateThreshold,
		AlertWindow:    tc.AlertRateWindow(),
	})
	a.perf = service.NewPerformanceMonitor(store, probes, sysstat.NewSampler(tc.DiskPath, connections),
		service.PerformanceMonitorOptions{
			BufferSize:     tc.MetricBufferSize,
			Retention:      config.Days(tc.MetricRetentionDays),
			StoreTimeout:   tc.StoreTimeout(),
			WriteQueueSize: tc.WriteQueueSize,
			HealthCacheTTL: tc.HealthCacheTTL(),
		})
	a.analytics = service.NewUserAnalyticsTracker(store, service.UserAnalyticsOptions{
		BufferSize:     tc.EventBufferSize,
		Retention:      config.Days(tc.EventRetentionDays),
		DAURetention:   config.Days(tc.DAURetentionDays),
		StoreTimeout:   tc.StoreTimeout(),
		WriteQueueSize: tc.WriteQueueSize,
	})

	a.scheduler = scheduler.New(0)
	if err := a.scheduler.RegisterRetention(tc.CleanupSchedule, a.errors, a.perf, a.analytics); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	healthSchedule := fmt.Sprintf("@every %s", tc.HealthInterval())
	if err := a.scheduler.Register("health:sample", healthSchedule, func(ctx context.Context) {
		a.perf.SampleHealth(ctx)
	}); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	var idem middleware.IdempotencyStore = middleware.NewInMemIdempotencyStore(cfg.Ingest.IdempotencyTTL())
	if a.redis != nil {
		idem = repository.NewRedisIdempotencyStore(a.redis, cfg.Ingest.IdempotencyTTL())
	}

	a.router = handler.NewRouter(handler.RouterDeps{
		Config:      cfg,
		Errors:      a.errors,
		Perf:        a.perf,
		Analytics:   a.analytics,
		Alerts:      a.alerts,
		Archive:     archiveReader,
		Limiter:     middleware.NewClientLimiter(cfg.Ingest.RateLimitQPS, cfg.Ingest.RateLimitBurst),
		Idempotency: idem,
	})
	return a, nil
}

// Close stops the scheduler, drains pending durable writes and releases
// connections.
func (a *app) Close(ctx context.Context) {
	if err := a.scheduler.Stop(ctx); err != nil {
		logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	a.errors.Close()
	a.perf.Close()
	a.analytics.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
