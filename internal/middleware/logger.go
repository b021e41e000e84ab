package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdeta/transit-eta-go/internal/metrics"
)

// Logger middleware logs HTTP requests and feeds the duration
// histogram.
func Logger(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		// FullPath keeps the metric label cardinality bounded.
		if route := c.FullPath(); route != "" {
			collector.ObserveRequest(method, route, latency.Seconds())
		}

		if raw != "" {
			path = path + "?" + raw
		}

		log.Printf("[%s] %s %s %d %v %s",
			method,
			path,
			clientIP,
			statusCode,
			latency,
			c.Errors.String(),
		)
	}
}
