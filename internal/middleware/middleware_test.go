package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teachhub/telemetry/internal/config"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/apperrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recorder struct {
	mu      sync.Mutex
	metrics []model.MetricRecord
	errors  []model.ErrorRecord
}

func (r *recorder) RecordMetric(_ context.Context, m model.MetricRecord) *model.MetricRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	return &m
}

func (r *recorder) TrackError(_ context.Context, e model.ErrorRecord) *model.ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
	return &e
}

func newRouter(rec *recorder) *gin.Engine {
	r := gin.New()
	r.Use(TelemetryMiddleware(rec, rec, "/metrics"), ErrorHandler())
	r.GET("/api/posts/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })
	r.GET("/api/broken", func(c *gin.Context) { c.Error(errors.New("database timeout")) })
	r.GET("/api/missing", func(c *gin.Context) {
		c.Error(apperrors.New(apperrors.ErrNotFound, "post not found", nil))
	})
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestTelemetryRecordsLatency(t *testing.T) {
	rec := &recorder{}
	r := newRouter(rec)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/posts/42", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	require.Len(t, rec.metrics, 1)
	m := rec.metrics[0]
	assert.Equal(t, model.MetricResponseTime, m.Type)
	assert.Equal(t, "/api/posts/:id", m.Endpoint)
	assert.Equal(t, http.MethodGet, m.Method)
	assert.Equal(t, http.StatusOK, m.StatusCode)
	assert.GreaterOrEqual(t, m.Value, 0.0)
	assert.Empty(t, rec.errors)
}

func TestTelemetryTracksServerErrors(t *testing.T) {
	rec := &recorder{}
	r := newRouter(rec)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/broken", nil)
	req.Header.Set(HeaderUserID, "u-7")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, rec.errors, 1)
	e := rec.errors[0]
	assert.Equal(t, model.LevelError, e.Level)
	assert.Equal(t, "database timeout", e.Message)
	assert.Equal(t, "u-7", e.UserID)
	assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
	assert.NotEmpty(t, e.RequestID)
	assert.Equal(t, w.Header().Get(HeaderRequestID), e.RequestID)
}

func TestTelemetryClientErrorsAreWarnings(t *testing.T) {
	rec := &recorder{}
	r := newRouter(rec)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
	require.Len(t, rec.errors, 1)
	assert.Equal(t, model.LevelWarn, rec.errors[0].Level)
}

func TestTelemetrySkipsPaths(t *testing.T) {
	rec := &recorder{}
	r := newRouter(rec)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.metrics)
	assert.Empty(t, w.Header().Get(HeaderRequestID))
}

func TestAdminMiddleware(t *testing.T) {
	cfg := config.Default()
	r := gin.New()
	r.GET("/admin", AdminMiddleware(cfg), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	cfg.Auth.AdminKey = "s3cret"
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAdminKey, "wrong")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAdminKey, "s3cret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewClientLimiter(0.001, 2)
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/v1/events", RateLimitMiddleware(limiter), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 2, limiter.Clients())
}

func TestClientLimiterUnlimited(t *testing.T) {
	limiter := NewClientLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("a") {
			t.Fatalf("request %d limited with qps disabled", i)
		}
	}
}

func TestErrorHandlerBindErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/bind", func(c *gin.Context) {
		var body struct {
			Event string `json:"event" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Error(err).SetType(gin.ErrorTypeBind)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bind", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
