package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ==================== SyncRateLimiter 同步限流器 ====================

// SyncRateLimiter 同步冷却限流器
// 防止频繁触发手动同步导致 Shopify API 限流，手动同步与定时同步共用
type SyncRateLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// NewSyncRateLimiter 创建限流器
func NewSyncRateLimiter() *SyncRateLimiter {
	return &SyncRateLimiter{now: time.Now}
}

// ==================== 限流检查 ====================

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行，允许时记录本次执行时间
// key: 限流键，如 "shop:demo.myshopify.com:order"
func (r *SyncRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(entry.lastTime)

	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// CheckOnly 仅检查，不更新时间
func (r *SyncRateLimiter) CheckOnly(key string, interval time.Duration) CheckResult {
	actual, ok := r.locks.Load(key)
	if !ok {
		return CheckResult{Allowed: true}
	}

	entry := actual.(*lockEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	elapsed := r.now().Sub(entry.lastTime)
	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	return CheckResult{Allowed: true}
}

// MarkExecuted 标记已执行（定时任务完成后调用）
func (r *SyncRateLimiter) MarkExecuted(key string) {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastTime = r.now()
}

// Reset 重置指定 key 的限流
func (r *SyncRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key 生成工具 ====================

// SyncType 同步类型
type SyncType string

const SyncTypeOrder SyncType = "order"

// ShopSyncKey 生成店铺级同步 Key
func ShopSyncKey(shop string, syncType SyncType) string {
	return fmt.Sprintf("shop:%s:%s", shop, syncType)
}
