package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// AccessLog logs requests served by the gateway's own endpoints. Requests that
// fall through to the proxy (no matched route) are logged by the proxy itself.
func AccessLog(logger log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(log.String(log.FieldComponent, "access_log"))

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			return
		}

		fields := []log.Field{
			log.String(log.FieldMethod, c.Request.Method),
			log.String(log.FieldPath, c.Request.URL.Path),
			log.String("route", route),
			log.String(log.FieldClientIP, c.ClientIP()),
			log.String(log.FieldUserAgent, c.Request.UserAgent()),
			log.Int(log.FieldResponseSize, c.Writer.Size()),
		}
		fields = append(fields, log.ResponseFields(c.Writer.Status(), time.Since(start))...)
		if len(c.Errors) > 0 {
			fields = append(fields, log.String(log.FieldError, c.Errors.String()))
			logger.Error("request failed", fields...)
			return
		}
		logger.Debug("request served", fields...)
	}
}
