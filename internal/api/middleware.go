package api

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trektrace/internal/metrics"
)

// MetricsMiddleware counts requests and observes their latency per route template.
func MetricsMiddleware(recorder metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		recorder.IncRequestsTotal(endpoint, c.Writer.Status())
		recorder.ObserveRequestDuration(endpoint, time.Since(start))
	}
}

var requestFields ginzap.Fn = func(c *gin.Context) []zapcore.Field {
	var fields []zapcore.Field
	if requestID := c.GetHeader("X-Request-Id"); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if id := c.Param("id"); id != "" {
		fields = append(fields, zap.String("hike_id", id))
	}
	return fields
}
