package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ajprasad1994/opsBuddy/internal/metrics"
)

// Prometheus counts requests to the gateway's own endpoints by route
// template. Proxied requests are recorded by the proxy with service labels.
func Prometheus(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			return
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status())
	}
}
