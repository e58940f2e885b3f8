package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/teachhub/telemetry/internal/pkg/logger"
	"github.com/teachhub/telemetry/internal/service"
)

const (
	alertWriteWait  = 5 * time.Second
	alertPongWait   = 60 * time.Second
	alertPingPeriod = alertPongWait * 9 / 10
)

// AlertHandler streams error alerts to dashboard clients over a websocket.
type AlertHandler struct {
	hub      *service.AlertHub
	upgrader websocket.Upgrader
}

func NewAlertHandler(hub *service.AlertHub) *AlertHandler {
	return &AlertHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Admin routes are already guarded by the admin key.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *AlertHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("alert stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	alerts, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// The read loop only handles control frames and notices disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(alertPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(alertPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(alertPingPeriod)
	defer ping.Stop()

	logger.Info("alert subscriber connected", "client_ip", c.ClientIP(), "subscribers", h.hub.Subscribers())
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(alertWriteWait))
			if err := conn.WriteJSON(alert); err != nil {
				logger.Debug("alert stream write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(alertWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
