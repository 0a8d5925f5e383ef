package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/your-org/veriface/internal/observability"
	"github.com/your-org/veriface/pkg/dto"
)

// LoggingMiddleware logs each request with slog.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		slog.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", duration.String(),
			"ip", c.ClientIP(),
		)

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}

// RateLimitMiddleware applies a global token bucket sized from the
// per-minute limit. Burst equals the per-minute allowance so short
// spikes are absorbed.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			observability.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error: "Rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// ConcurrencyLimitMiddleware caps in-flight requests with a semaphore.
// Excess requests are rejected immediately rather than queued, so the
// caller can retry instead of piling onto a saturated pipeline.
func ConcurrencyLimitMiddleware(max int) gin.HandlerFunc {
	sem := make(chan struct{}, max)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			observability.ActiveRequests.Inc()
			defer func() {
				<-sem
				observability.ActiveRequests.Dec()
			}()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error: "Server is at capacity, try again later",
				Code:  "SERVER_BUSY",
			})
		}
	}
}
