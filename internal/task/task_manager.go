package task

import (
	"context"

	"go.uber.org/zap"

	"shopify_order_sync/internal/middleware"
	"shopify_order_sync/internal/service"
	"shopify_order_sync/pkg/shopify"
)

// ==================== TaskManager 同步任务管理器 ====================

// TaskManager 统一管理后台同步任务的启停与手动触发
type TaskManager struct {
	orderTask *OrderSyncTask
	log       *zap.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	OrderSyncer OrderSyncer
	SyncLimiter *middleware.SyncRateLimiter
	Shops       []shopify.Credential
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	OrderEnabled bool
	Order        OrderTaskConfig
}

// NewTaskManager 创建任务管理器，未开启的任务不会创建
func NewTaskManager(deps *TaskManagerDeps, cfg TaskManagerConfig, log *zap.Logger) *TaskManager {
	tm := &TaskManager{log: log.Named("task_manager")}

	if cfg.OrderEnabled && deps.OrderSyncer != nil {
		tm.orderTask = NewOrderSyncTask(deps.OrderSyncer, deps.SyncLimiter, deps.Shops, cfg.Order, log)
	}
	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	if tm.orderTask == nil {
		tm.log.Info("未开启任何同步任务")
		return nil
	}
	return tm.orderTask.Start()
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	if tm.orderTask != nil {
		tm.orderTask.Stop()
	}
}

// ==================== 手动触发接口 ====================

// TriggerOrderSync 立即同步单个店铺
func (tm *TaskManager) TriggerOrderSync(ctx context.Context, cred shopify.Credential) (*service.SyncResult, error) {
	if tm.orderTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.orderTask.SyncShopNow(ctx, cred)
}

// TriggerAllOrdersSync 立即同步全部配置店铺
func (tm *TaskManager) TriggerAllOrdersSync(ctx context.Context) (RunStats, error) {
	if tm.orderTask == nil {
		return RunStats{}, ErrTaskDisabled
	}
	return tm.orderTask.SyncAllNow(ctx), nil
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"order": tm.orderTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
	ErrCoolingDown  TaskError = "shop sync is cooling down"
)
