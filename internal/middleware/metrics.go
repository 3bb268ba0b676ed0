package middleware

import (
	"pai-docqa-go/pkg/metrics"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Metrics 按路由模板记录请求耗时，未匹配的路由记为 "unmatched"。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
