package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teachhub/telemetry/internal/config"
	"github.com/teachhub/telemetry/internal/middleware"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/service"
)

const testAdminKey = "admin-test-key"

type downProbe struct{}

func (downProbe) Name() string { return "redis" }

func (downProbe) Probe(context.Context) model.DependencyStatus {
	return model.DependencyStatus{Status: model.ServiceDown, Message: "connection refused"}
}

type stubArchive struct {
	records []*model.ErrorRecord
	err     error
	since   time.Time
	limit   int
}

func (s *stubArchive) ListSince(_ context.Context, since time.Time, limit int) ([]*model.ErrorRecord, error) {
	s.since, s.limit = since, limit
	return s.records, s.err
}

type testEnv struct {
	router    *gin.Engine
	errors    *service.ErrorTracker
	perf      *service.PerformanceMonitor
	analytics *service.UserAnalyticsTracker
	alerts    *service.AlertHub
}

func newTestEnv(t *testing.T, probes []service.HealthProbe, archive ArchiveReader) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Auth.AdminKey = testAdminKey

	env := &testEnv{
		alerts:    service.NewAlertHub(8),
		perf:      service.NewPerformanceMonitor(nil, probes, nil, service.PerformanceMonitorOptions{}),
		analytics: service.NewUserAnalyticsTracker(nil, service.UserAnalyticsOptions{}),
	}
	env.errors = service.NewErrorTracker(nil, nil, env.alerts, service.ErrorTrackerOptions{})
	t.Cleanup(func() {
		env.errors.Close()
		env.perf.Close()
		env.analytics.Close()
	})

	deps := RouterDeps{
		Config:      cfg,
		Errors:      env.errors,
		Perf:        env.perf,
		Analytics:   env.analytics,
		Alerts:      env.alerts,
		Limiter:     middleware.NewClientLimiter(1000, 1000),
		Idempotency: middleware.NewInMemIdempotencyStore(time.Minute),
	}
	if archive != nil {
		deps.Archive = archive
	}
	env.router = NewRouter(deps)
	return env
}

func (e *testEnv) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set(middleware.HeaderAdminKey, testAdminKey)
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into), w.Body.String())
}

func TestTrackEventsSingleAndBatch(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(http.MethodPost, "/v1/events", `{"user_id":"u1","session_id":"s1","event":"page_view","properties":{"page":"/home"}}`, false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/v1/events", `{"events":[{"user_id":"u1","session_id":"s1","event":"search","category":"search"},{"event":"download","platform":"mobile"}]}`, false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		Accepted int      `json:"accepted"`
		IDs      []string `json:"ids"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Accepted)
	assert.Len(t, resp.IDs, 2)
	assert.Equal(t, 3, env.analytics.BufferLen())
}

func TestTrackEventsRetryIsDeduplicated(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `{"events":[{"user_id":"u1","event":"page_view"},{"user_id":"u1","event":"search"}]}`

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderIdempotencyKey, "batch-42")
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	assert.Equal(t, 2, env.analytics.BufferLen())
}

func TestTrackEventsRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, body := range []string{
		``,
		`{"user_id":"u1"}`,
		`{"events":[]}`,
		`{"events":[{"user_id":"u1"}]}`,
		`not json`,
	} {
		w := env.do(http.MethodPost, "/v1/events", body, false)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Zero(t, env.analytics.BufferLen())
}

func TestReportErrorAndListRecent(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(http.MethodPost, "/v1/errors", `{"level":"fatal","message":"x"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/v1/errors", `{"message":"TypeError: undefined","stack":"at app.js:1","metadata":{"token":"t"}}`, false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/v1/admin/errors?limit=10", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Errors []model.ErrorRecord `json:"errors"`
	}
	decode(t, w, &resp)
	// the rejected report is tracked too, as a request-level warning
	require.Len(t, resp.Errors, 2)
	reported := resp.Errors[0]
	assert.Equal(t, "TypeError: undefined", reported.Message)
	assert.Equal(t, model.LevelError, reported.Level)
	assert.Equal(t, "***", reported.Metadata["token"])
	assert.Equal(t, "client", reported.Metadata["source"])
	assert.Equal(t, model.LevelWarn, resp.Errors[1].Level)
	assert.Equal(t, http.StatusBadRequest, resp.Errors[1].StatusCode)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.do(http.MethodGet, "/v1/admin/errors", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReportingQueries(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.perf.RecordMetric(ctx, model.MetricRecord{Type: model.MetricResponseTime, Value: 120, Endpoint: "/api/posts"})
	env.analytics.TrackEvent(ctx, model.BehaviorEvent{UserID: "u1", SessionID: "s1", Event: "page_view"})
	env.analytics.TrackEvent(ctx, model.BehaviorEvent{UserID: "u1", SessionID: "s1", Event: "share"})

	w := env.do(http.MethodGet, "/v1/admin/errors/stats?window=month", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/v1/admin/errors/stats?window=hour", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.ErrorStats
	decode(t, w, &stats)
	assert.Len(t, stats.Trend, 12)

	w = env.do(http.MethodGet, "/v1/admin/performance/stats", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var perf model.PerformanceStats
	decode(t, w, &perf)
	endpoints := make([]string, 0, len(perf.SlowestEndpoints))
	for _, e := range perf.SlowestEndpoints {
		endpoints = append(endpoints, e.Endpoint)
	}
	assert.Contains(t, endpoints, "/api/posts")
	assert.Contains(t, endpoints, "/v1/admin/errors/stats")

	w = env.do(http.MethodGet, "/v1/admin/performance/metrics?type=response_time&window=hour", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/v1/admin/analytics/summary?window=week", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var summary model.AnalyticsSummary
	decode(t, w, &summary)
	assert.Equal(t, 2, summary.TotalEvents)
	assert.Len(t, summary.Trends, 168)

	w = env.do(http.MethodGet, "/v1/admin/analytics/dau?days=7", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var dau struct {
		Days []model.DailyActiveUsers `json:"days"`
	}
	decode(t, w, &dau)
	require.Len(t, dau.Days, 7)
	assert.EqualValues(t, 1, dau.Days[6].Count)

	w = env.do(http.MethodGet, "/v1/admin/analytics/dau?days=-1", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/v1/admin/analytics/journey/u1?session=s1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var journey model.UserJourney
	decode(t, w, &journey)
	assert.Len(t, journey.Events, 2)
	assert.Equal(t, 1, journey.ConversionFunnel["share"])
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.do(http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var health model.SystemHealth
	decode(t, w, &health)
	assert.Equal(t, model.StatusHealthy, health.Status)

	down := newTestEnv(t, []service.HealthProbe{downProbe{}}, nil)
	w = down.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = down.do(http.MethodGet, "/v1/admin/health", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestArchivedErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.do(http.MethodGet, "/v1/admin/errors/archive", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	archive := &stubArchive{records: []*model.ErrorRecord{{ID: "e-1", Message: "db down", Level: model.LevelError}}}
	env = newTestEnv(t, nil, archive)
	w = env.do(http.MethodGet, "/v1/admin/errors/archive?since=2026-10-01T00:00:00Z&limit=5", "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5, archive.limit)
	assert.True(t, archive.since.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))

	w = env.do(http.MethodGet, "/v1/admin/errors/archive?since=yesterday", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	archive.err = errors.New("connection reset")
	w = env.do(http.MethodGet, "/v1/admin/errors/archive", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAlertStream(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/admin/alerts/stream"
	header := http.Header{}
	header.Set(middleware.HeaderAdminKey, testAdminKey)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.alerts.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.errors.TrackError(context.Background(), model.ErrorRecord{Message: "db down", StatusCode: 503, Endpoint: "/api/posts"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var alert service.Alert
	require.NoError(t, conn.ReadJSON(&alert))
	assert.Equal(t, service.AlertCriticalError, alert.Kind)
	assert.Equal(t, "/api/posts", alert.Endpoint)
}
