package middleware

import (
	"log/slog"
	"net/http"

	"taskboard/internal/pkg/metrics"
	"taskboard/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// LoginRateLimit 对凭证类接口按客户端 IP 做固定窗口限流。
//
// Redis 不可用时放行并记日志：限流是防护手段，不能成为单点。
func LoginRateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "login:" + c.ClientIP()
		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitRejectedTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}
