package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/teachhub/telemetry/internal/model"
)

const (
	HeaderRequestID  = "X-Request-ID"
	HeaderUserID     = "X-User-ID"
	ContextRequestID = "request_id"
)

// MetricRecorder is satisfied by service.PerformanceMonitor.
type MetricRecorder interface {
	RecordMetric(ctx context.Context, partial model.MetricRecord) *model.MetricRecord
}

// ErrorRecorder is satisfied by service.ErrorTracker.
type ErrorRecorder interface {
	TrackError(ctx context.Context, partial model.ErrorRecord) *model.ErrorRecord
}

// TelemetryMiddleware tags each request with an id, records its latency as
// a response_time metric and reports failed requests to the error tracker.
// Requests for paths in skip are passed through untouched.
func TelemetryMiddleware(perf MetricRecorder, errs ErrorRecorder, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		c.Set(ContextRequestID, reqID)

		c.Next()

		status := c.Writer.Status()
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		endpoint := routeOf(c)
		ctx := c.Request.Context()

		if perf != nil {
			perf.RecordMetric(ctx, model.MetricRecord{
				Type:       model.MetricResponseTime,
				Value:      elapsed,
				Endpoint:   endpoint,
				Method:     c.Request.Method,
				StatusCode: status,
				Metadata:   map[string]any{"request_id": reqID},
			})
		}

		if errs == nil || (status < 500 && len(c.Errors) == 0) {
			return
		}
		level := model.LevelWarn
		if status >= 500 {
			level = model.LevelError
		}
		message := ""
		if last := c.Errors.Last(); last != nil {
			message = last.Error()
		}
		errs.TrackError(ctx, model.ErrorRecord{
			Level:      level,
			Message:    message,
			UserID:     c.GetHeader(HeaderUserID),
			RequestID:  reqID,
			Endpoint:   endpoint,
			Method:     c.Request.Method,
			StatusCode: status,
			UserAgent:  c.Request.UserAgent(),
			IP:         c.ClientIP(),
			Metadata:   map[string]any{"path": c.Request.URL.Path, "latency_ms": elapsed},
		})
	}
}
