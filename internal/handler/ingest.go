package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/teachhub/telemetry/internal/middleware"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/apperrors"
	"github.com/teachhub/telemetry/internal/service"
)

// IngestHandler accepts client-reported events and errors.
type IngestHandler struct {
	analytics *service.UserAnalyticsTracker
	errors    *service.ErrorTracker
}

func NewIngestHandler(analytics *service.UserAnalyticsTracker, errors *service.ErrorTracker) *IngestHandler {
	return &IngestHandler{analytics: analytics, errors: errors}
}

// TrackEvents accepts a single event or {"events": [...]}.
func (h *IngestHandler) TrackEvents(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		c.Error(apperrors.NewInvalidRequest("request body is empty"))
		return
	}

	var probe struct {
		Events json.RawMessage `json:"events"`
	}
	_ = json.Unmarshal(body, &probe)

	var inputs []model.EventInput
	if probe.Events != nil {
		var batch model.EventBatchInput
		if err := binding.JSON.BindBody(body, &batch); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		inputs = batch.Events
	} else {
		var single model.EventInput
		if err := binding.JSON.BindBody(body, &single); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		inputs = []model.EventInput{single}
	}

	headerUser := c.GetHeader(middleware.HeaderUserID)
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ev := in.ToEvent()
		if ev.UserID == "" {
			ev.UserID = headerUser
		}
		ev.IP = c.ClientIP()
		ev.UserAgent = c.Request.UserAgent()
		tracked := h.analytics.TrackEvent(c.Request.Context(), ev)
		ids = append(ids, tracked.ID)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(ids), "ids": ids})
}

func (h *IngestHandler) ReportError(c *gin.Context) {
	var in model.ErrorReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	rec := in.ToRecord()
	if rec.UserID == "" {
		rec.UserID = c.GetHeader(middleware.HeaderUserID)
	}
	if id, ok := c.Get(middleware.ContextRequestID); ok {
		rec.RequestID, _ = id.(string)
	}
	rec.IP = c.ClientIP()
	rec.UserAgent = c.Request.UserAgent()
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	rec.Metadata["source"] = "client"

	tracked := h.errors.TrackError(c.Request.Context(), rec)
	c.JSON(http.StatusAccepted, gin.H{"id": tracked.ID})
}
