package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rikseotools/vence/pkg/logger"
)

// Logger logs one line per request. Bodies are not logged.
func Logger(log *logger.Logger) gin.HandlerFunc {
	zl := log.Component("http").ZL
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		evt := zl.Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			evt = zl.Error()
			msg = "Server error"
		case status >= 400:
			evt = zl.Warn()
			msg = "Client error"
		}
		evt.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
