package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/apperrors"
	"github.com/teachhub/telemetry/internal/service"
)

// ArchiveReader lists archived critical errors; nil when no database is
// configured.
type ArchiveReader interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]*model.ErrorRecord, error)
}

// ReportingHandler serves the admin dashboard queries.
type ReportingHandler struct {
	errors    *service.ErrorTracker
	perf      *service.PerformanceMonitor
	analytics *service.UserAnalyticsTracker
	archive   ArchiveReader
}

func NewReportingHandler(errors *service.ErrorTracker, perf *service.PerformanceMonitor,
	analytics *service.UserAnalyticsTracker, archive ArchiveReader) *ReportingHandler {
	return &ReportingHandler{errors: errors, perf: perf, analytics: analytics, archive: archive}
}

func (h *ReportingHandler) RecentErrors(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50, 500)
	if err != nil {
		c.Error(err)
		return
	}
	offset, err := queryInt(c, "offset", 0, 0)
	if err != nil {
		c.Error(err)
		return
	}
	errs := h.errors.GetRecentErrors(c.Request.Context(), limit, offset)
	c.JSON(http.StatusOK, gin.H{"errors": errs, "limit": limit, "offset": offset})
}

func (h *ReportingHandler) ErrorStats(c *gin.Context) {
	w, err := queryWindow(c)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.errors.GetErrorStats(c.Request.Context(), w))
}

func (h *ReportingHandler) ArchivedErrors(c *gin.Context) {
	if h.archive == nil {
		c.Error(apperrors.New(apperrors.ErrStoreUnavailable, "error archive not configured", nil))
		return
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		since = t
	}
	limit, err := queryInt(c, "limit", 100, 1000)
	if err != nil {
		c.Error(err)
		return
	}
	records, err := h.archive.ListSince(c.Request.Context(), since, limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrStoreUnavailable, "failed to read error archive", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": records, "since": model.FormatTimestamp(since)})
}

func (h *ReportingHandler) PerformanceStats(c *gin.Context) {
	w, err := queryWindow(c)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.perf.GetPerformanceStats(c.Request.Context(), w))
}

func (h *ReportingHandler) Metrics(c *gin.Context) {
	w, err := queryWindow(c)
	if err != nil {
		c.Error(err)
		return
	}
	limit, err := queryInt(c, "limit", 100, 10000)
	if err != nil {
		c.Error(err)
		return
	}
	metricType := model.MetricType(strings.TrimSpace(c.Query("type")))
	records := h.perf.GetMetrics(c.Request.Context(), metricType, w, limit)
	c.JSON(http.StatusOK, gin.H{"metrics": records, "window": w, "type": metricType})
}

func (h *ReportingHandler) AnalyticsSummary(c *gin.Context) {
	w, err := queryWindow(c)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.analytics.GetAnalyticsSummary(c.Request.Context(), w))
}

func (h *ReportingHandler) DailyActiveUsers(c *gin.Context) {
	days, err := queryInt(c, "days", 7, 365)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": h.analytics.GetDailyActiveUsers(c.Request.Context(), days)})
}

func (h *ReportingHandler) UserJourney(c *gin.Context) {
	userID := c.Param("userId")
	if strings.TrimSpace(userID) == "" {
		c.Error(apperrors.NewInvalidRequest("userId is required"))
		return
	}
	c.JSON(http.StatusOK, h.analytics.GetUserJourney(c.Request.Context(), userID, c.Query("session")))
}
