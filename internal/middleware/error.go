package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/pkg/apperrors"
	"github.com/teachhub/telemetry/internal/pkg/logger"
)

// ErrorHandler renders the last error attached with c.Error as an AppError
// body. Binding failures become INVALID_REQUEST.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		last := c.Errors.Last()
		var appErr *apperrors.AppError
		switch {
		case errors.As(last.Err, &appErr):
		case last.IsType(gin.ErrorTypeBind):
			appErr = apperrors.New(apperrors.ErrInvalidRequest, last.Err.Error(), last.Err)
		default:
			appErr = apperrors.New(apperrors.ErrInternal, last.Err.Error(), last.Err)
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}
		if id, ok := c.Get(ContextRequestID); ok {
			logFields = append(logFields, "request_id", id)
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "Internal Server Error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, appErr)
	}
}
