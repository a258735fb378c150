package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopify_order_sync/internal/middleware"
	"shopify_order_sync/internal/service"
	"shopify_order_sync/pkg/shopify"
)

// ==================== OrderSyncTask 订单同步任务 ====================

// OrderSyncer 定时任务依赖的同步能力，由 *service.OrderService 实现
type OrderSyncer interface {
	SyncOrders(ctx context.Context, cred shopify.Credential, mode service.SyncMode) (*service.SyncResult, error)
	DefaultMode() service.SyncMode
}

var _ OrderSyncer = (*service.OrderService)(nil)

// OrderTaskConfig 任务配置
type OrderTaskConfig struct {
	Cron        string        // 6 段 cron 表达式，带秒
	Cooldown    time.Duration // 与手动同步共用的冷却时间
	Concurrency int
	Timeout     time.Duration // 单轮超时
	RunOnStart  bool
}

// OrderSyncTask 订单同步定时任务
type OrderSyncTask struct {
	syncer  OrderSyncer
	limiter *middleware.SyncRateLimiter
	shops   []shopify.Credential
	cfg     OrderTaskConfig
	cron    *cron.Cron
	log     *zap.Logger

	// 上一轮未结束时跳过本轮
	running sync.Mutex
}

// RunStats 单轮统计
type RunStats struct {
	Shops   int
	Synced  int // 成功同步的店铺数
	Cooling int // 冷却中跳过的店铺数
	Failed  int
	Orders  int // 写入订单总数
}

// NewOrderSyncTask 创建订单同步任务
func NewOrderSyncTask(
	syncer OrderSyncer,
	limiter *middleware.SyncRateLimiter,
	shops []shopify.Credential,
	cfg OrderTaskConfig,
	log *zap.Logger,
) *OrderSyncTask {
	if cfg.Cron == "" {
		cfg.Cron = "0 */10 * * * *"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if limiter == nil {
		limiter = middleware.NewSyncRateLimiter()
	}

	return &OrderSyncTask{
		syncer:  syncer,
		limiter: limiter,
		shops:   shops,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
		log:     log.Named("task"),
	}
}

// Start 注册并启动定时任务
func (t *OrderSyncTask) Start() error {
	if _, err := t.cron.AddFunc(t.cfg.Cron, t.runOnce); err != nil {
		return fmt.Errorf("注册订单同步任务失败: %w", err)
	}

	// 首次执行
	if t.cfg.RunOnStart {
		go t.runOnce()
	}

	t.cron.Start()
	t.log.Info("订单同步任务已启动",
		zap.String("cron", t.cfg.Cron),
		zap.Int("shops", len(t.shops)),
	)
	return nil
}

// Stop 停止任务，等待进行中的一轮结束
func (t *OrderSyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("订单同步任务已停止")
}

func (t *OrderSyncTask) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
	defer cancel()
	t.SyncAllNow(ctx)
}

// SyncAllNow 同步全部配置店铺，冷却中的店铺跳过
func (t *OrderSyncTask) SyncAllNow(ctx context.Context) RunStats {
	stats := RunStats{Shops: len(t.shops)}
	if len(t.shops) == 0 {
		t.log.Debug("无配置店铺需要同步")
		return stats
	}

	if !t.running.TryLock() {
		t.log.Warn("上一轮同步仍在进行，跳过本轮")
		return stats
	}
	defer t.running.Unlock()

	start := time.Now()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)

	for _, cred := range t.shops {
		g.Go(func() error {
			key := middleware.ShopSyncKey(cred.Shop, middleware.SyncTypeOrder)
			if res := t.limiter.CheckOnly(key, t.cfg.Cooldown); !res.Allowed {
				t.log.Debug("店铺冷却中，跳过", zap.String("shop", cred.Shop), zap.Duration("retry_after", res.RetryAfter))
				mu.Lock()
				stats.Cooling++
				mu.Unlock()
				return nil
			}

			result, err := t.syncer.SyncOrders(gctx, cred, t.syncer.DefaultMode())
			t.limiter.MarkExecuted(key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// 单店失败不影响其他店铺
				stats.Failed++
				t.log.Error("店铺订单同步失败", zap.String("shop", cred.Shop), zap.Error(err))
				return nil
			}
			stats.Synced++
			stats.Orders += result.Synced
			return nil
		})
	}
	_ = g.Wait()

	t.log.Info("订单同步完成",
		zap.Int("shops", stats.Shops),
		zap.Int("synced", stats.Synced),
		zap.Int("cooling", stats.Cooling),
		zap.Int("failed", stats.Failed),
		zap.Int("orders", stats.Orders),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats
}

// SyncShopNow 立即同步单个店铺，同样受冷却约束
func (t *OrderSyncTask) SyncShopNow(ctx context.Context, cred shopify.Credential) (*service.SyncResult, error) {
	key := middleware.ShopSyncKey(cred.Shop, middleware.SyncTypeOrder)
	if res := t.limiter.Check(key, t.cfg.Cooldown); !res.Allowed {
		return nil, ErrCoolingDown
	}
	return t.syncer.SyncOrders(ctx, cred, t.syncer.DefaultMode())
}
