package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/internal/repository"
	"shopify_order_sync/pkg/logger"
	"shopify_order_sync/pkg/shopify"
)

// ==================== 配置与结果 ====================

// OrderServiceConfig 同步与读取参数
type OrderServiceConfig struct {
	DefaultMode     SyncMode
	MaxOrders       int // 单次同步累计上限
	RecentDays      int // 近期订单窗口，同时用于 GraphQL 拉取
	JoinConcurrency int // 读路径并发拼装订单项的上限
}

// SyncResult 一次同步的结果
type SyncResult struct {
	Shop      string        `json:"shop"`
	Mode      SyncMode      `json:"mode"`
	Fetched   int           `json:"fetched"`
	Synced    int           `json:"synced"`
	Skipped   int           `json:"skipped"`
	Truncated bool          `json:"truncated"`
	Orders    []model.Order `json:"orders"`
}

// ListQuery 订单列表参数
type ListQuery struct {
	Limit  int
	Offset int
	Sync   bool     // 读取前先同步
	Mode   SyncMode // Sync 为 true 时使用，空值取默认方式
}

// OrderPage 分页结果
type OrderPage struct {
	Orders []model.Order
	Limit  int
	Offset int
	Total  int64
}

// ==================== OrderService ====================

// OrderService 订单同步与查询
type OrderService struct {
	orderRepo repository.OrderRepository
	source    OrderSource
	walker    *OrderWalker
	cfg       OrderServiceConfig
	now       func() time.Time
	log       *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, source OrderSource, cfg OrderServiceConfig, log *zap.Logger) *OrderService {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = SyncModeREST
	}
	if cfg.RecentDays <= 0 {
		cfg.RecentDays = 60
	}
	if cfg.JoinConcurrency <= 0 {
		cfg.JoinConcurrency = 8
	}
	return &OrderService{
		orderRepo: orderRepo,
		source:    source,
		walker:    NewOrderWalker(source, cfg.MaxOrders, cfg.RecentDays, log),
		cfg:       cfg,
		now:       time.Now,
		log:       log.Named("order_sync"),
	}
}

// DefaultMode 未指定时使用的同步方式
func (s *OrderService) DefaultMode() SyncMode {
	return s.cfg.DefaultMode
}

// ==================== 同步 ====================

// SyncOrders 拉取店铺订单并逐条写入
// 单条记录格式异常时跳过，写库失败时中止剩余订单，已提交的订单保留
func (s *OrderService) SyncOrders(ctx context.Context, cred shopify.Credential, mode SyncMode) (*SyncResult, error) {
	if err := validateCredential(cred); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = s.cfg.DefaultMode
	}
	log := logger.FromContext(ctx, s.log).With(zap.String("shop", cred.Shop), zap.String("mode", string(mode)))
	start := s.now()

	walk, err := s.walker.Walk(ctx, cred, mode)
	if err != nil {
		log.Error("拉取订单失败", zap.Error(err))
		return nil, err
	}

	result := &SyncResult{
		Shop:      cred.Shop,
		Mode:      mode,
		Fetched:   len(walk.Orders),
		Truncated: walk.Truncated,
		Orders:    make([]model.Order, 0, len(walk.Orders)),
	}

	for _, raw := range walk.Orders {
		normalized, err := NormalizeOrder(cred.Shop, raw)
		if err != nil {
			result.Skipped++
			log.Warn("订单格式异常，已跳过", zap.Error(err))
			continue
		}

		stored, err := s.orderRepo.SaveOrder(ctx, &normalized.Order, normalized.Items)
		if err != nil {
			log.Error("写入订单失败，中止本次同步",
				zap.String("order_id", normalized.Order.OrderID),
				zap.Int("synced", result.Synced),
				zap.Error(err),
			)
			return result, err
		}
		result.Synced++
		result.Orders = append(result.Orders, *stored)
	}

	if err := s.joinItems(ctx, result.Orders); err != nil {
		return result, err
	}

	log.Info("订单同步完成",
		zap.Int("pages", walk.Pages),
		zap.Int("fetched", result.Fetched),
		zap.Int("synced", result.Synced),
		zap.Int("skipped", result.Skipped),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return result, nil
}

// FetchOrCreateOrder 先查本地，未命中时从 Shopify 拉取单个订单写入后返回
func (s *OrderService) FetchOrCreateOrder(ctx context.Context, cred shopify.Credential, orderID string) (*model.Order, error) {
	if err := validateCredential(cred); err != nil {
		return nil, err
	}
	orderID = LastSegment(orderID)
	if orderID == "" {
		return nil, apperr.Validation("订单号不能为空")
	}

	local, err := s.orderRepo.GetByShopAndOrderID(ctx, cred.Shop, orderID)
	if err != nil {
		return nil, err
	}
	if local != nil {
		if err := s.attachItems(ctx, local); err != nil {
			return nil, err
		}
		return local, nil
	}

	log := logger.FromContext(ctx, s.log).With(zap.String("shop", cred.Shop), zap.String("order_id", orderID))
	log.Info("本地无此订单，从 Shopify 拉取")

	remote, err := s.source.GetOrder(ctx, cred, orderID)
	if err != nil {
		return nil, apperr.Fetch("拉取订单详情失败", err)
	}
	if remote == nil {
		return nil, apperr.NotFound(fmt.Sprintf("订单 %s 不存在", orderID))
	}

	normalized, err := NormalizeOrder(cred.Shop, FromGraphQL(*remote))
	if err != nil {
		log.Warn("订单格式异常", zap.Error(err))
		return nil, err
	}

	stored, err := s.orderRepo.SaveOrder(ctx, &normalized.Order, normalized.Items)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// ==================== 查询 ====================

// ListOrders 分页查询，Sync 为 true 时先同步，同步失败只记录日志
func (s *OrderService) ListOrders(ctx context.Context, cred shopify.Credential, q ListQuery) (*OrderPage, error) {
	if q.Sync {
		if _, err := s.SyncOrders(ctx, cred, q.Mode); err != nil {
			logger.FromContext(ctx, s.log).Warn("列表前同步失败，继续返回本地数据",
				zap.String("shop", cred.Shop), zap.Error(err))
		}
	}

	orders, err := s.orderRepo.ListByShop(ctx, cred.Shop, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	total, err := s.orderRepo.CountByShop(ctx, cred.Shop)
	if err != nil {
		return nil, err
	}
	if err := s.joinItems(ctx, orders); err != nil {
		return nil, err
	}

	return &OrderPage{Orders: orders, Limit: q.Limit, Offset: q.Offset, Total: total}, nil
}

// ListRecentOrders 近 RecentDays 天的订单
func (s *OrderService) ListRecentOrders(ctx context.Context, shop string) ([]model.Order, error) {
	since := s.now().AddDate(0, 0, -s.cfg.RecentDays)
	orders, err := s.orderRepo.ListRecent(ctx, shop, since)
	if err != nil {
		return nil, err
	}
	if err := s.joinItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ==================== 内部方法 ====================

// joinItems 并发查询每个订单的订单项，订单之间互不依赖
func (s *OrderService) joinItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.JoinConcurrency)

	for i := range orders {
		order := &orders[i]
		g.Go(func() error {
			return s.attachItems(gctx, order)
		})
	}
	return g.Wait()
}

func (s *OrderService) attachItems(ctx context.Context, order *model.Order) error {
	items, err := s.orderRepo.ListItems(ctx, order.Shop, order.OrderID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.OrderItem{}
	}
	order.Items = items
	return nil
}

func validateCredential(cred shopify.Credential) error {
	if strings.TrimSpace(cred.Shop) == "" || strings.TrimSpace(cred.AccessToken) == "" {
		return apperr.Validation("缺少店铺域名或访问令牌")
	}
	return nil
}
