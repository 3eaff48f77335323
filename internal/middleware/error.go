package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/logger"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error. AppErrors keep
// their status and message; anything else becomes an opaque 500.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	zl := log.Component("http").ZL
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			evt := zl.Warn()
			if status(e.Err) >= http.StatusInternalServerError {
				evt = zl.Error()
			}
			evt.
				Err(e.Err).
				Str("trace_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last().Err
		code := status(lastErr)
		msg := "internal server error"
		var appErr *apperrors.AppError
		if errors.As(lastErr, &appErr) {
			msg = appErr.Message
		}

		c.JSON(code, ErrorResponse{
			Status:  "error",
			Code:    code,
			Message: msg,
			TraceID: traceID,
		})
	}
}

func status(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}
