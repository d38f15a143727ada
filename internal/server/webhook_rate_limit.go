package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonClientRate = "client-rate"

// WebhookRateLimit spends one token per delivery from the caller's bucket.
// Redis failures let the request through.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.limiter.AllowClient(ctx, c.Param("provider"), c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("webhook rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			denyWebhookRateLimit(c, endpoint, rateLimitReasonClientRate, retryAfterSeconds(result.RetryAfter.Seconds()), s.obsMetrics)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func denyWebhookRateLimit(c *gin.Context, endpoint, reason string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("webhook rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
		zap.String("client_ip", c.ClientIP()),
	)
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(seconds float64) int {
	if seconds <= 1 {
		return 1
	}
	return int(math.Ceil(seconds))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
