package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 同步限流中间件 ====================

// SyncRateLimit 同步冷却中间件，按店铺 + 同步类型限流
// 必须挂在 ShopHeaders 之后
//
// 使用示例:
//
//	api.POST("/sync/orders",
//	    middleware.ShopHeaders(),
//	    middleware.SyncRateLimit(limiter, middleware.SyncTypeOrder, 30*time.Second),
//	    orderCtl.Sync,
//	)
//
// interval 为 0 时不限流
func SyncRateLimit(limiter *SyncRateLimiter, syncType SyncType, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if interval <= 0 {
			c.Next()
			return
		}

		cred, ok := GetCredential(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Missing shop or access token in headers",
			})
			return
		}

		result := limiter.Check(ShopSyncKey(cred.Shop, syncType), interval)
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds()) + 1
			c.Header("Retry-After", fmt.Sprint(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      formatRetryMessage(result.RetryAfter),
				"retryAfter": retryAfter,
				"syncType":   syncType,
			})
			return
		}

		c.Next()
	}
}

// ==================== 辅助函数 ====================

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds())

	if seconds < 60 {
		return fmt.Sprintf("Sync is cooling down, retry in %d seconds", seconds+1)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60

	if remainingSeconds == 0 {
		return fmt.Sprintf("Sync is cooling down, retry in %d minutes", minutes)
	}

	return fmt.Sprintf("Sync is cooling down, retry in %d min %d s", minutes, remainingSeconds)
}
