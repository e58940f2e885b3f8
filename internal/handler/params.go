package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/apperrors"
)

func queryWindow(c *gin.Context) (model.Window, error) {
	w, err := model.ParseWindow(c.Query("window"))
	if err != nil {
		return "", apperrors.NewInvalidRequest(err.Error())
	}
	return w, nil
}

// queryInt reads a non-negative integer parameter, applying def when the
// parameter is absent and clamping to max.
func queryInt(c *gin.Context, name string, def, max int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewInvalidRequest(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
