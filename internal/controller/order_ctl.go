package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopify_order_sync/internal/api/dto"
	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/middleware"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/internal/service"
	"shopify_order_sync/pkg/logger"
	"shopify_order_sync/pkg/shopify"
)

// OrderService 控制器依赖的订单服务，由 *service.OrderService 实现
type OrderService interface {
	ListOrders(ctx context.Context, cred shopify.Credential, q service.ListQuery) (*service.OrderPage, error)
	ListRecentOrders(ctx context.Context, shop string) ([]model.Order, error)
	FetchOrCreateOrder(ctx context.Context, cred shopify.Credential, orderID string) (*model.Order, error)
	SyncOrders(ctx context.Context, cred shopify.Credential, mode service.SyncMode) (*service.SyncResult, error)
	DefaultMode() service.SyncMode
}

var _ OrderService = (*service.OrderService)(nil)

// OrderController 订单控制器
type OrderController struct {
	svc OrderService
	log *zap.Logger
}

// NewOrderController 创建订单控制器
func NewOrderController(svc OrderService, log *zap.Logger) *OrderController {
	return &OrderController{svc: svc, log: log.Named("order_ctl")}
}

// ==================== 订单列表与详情 ====================

// List 订单列表
// GET /api/orders?limit=50&offset=0&sync=false
func (c *OrderController) List(ctx *gin.Context) {
	cred, ok := middleware.GetCredential(ctx)
	if !ok {
		c.fail(ctx, apperr.Validation("missing credential"), "Missing shop or access token in headers")
		return
	}

	var req dto.ListOrdersRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		c.fail(ctx, invalidQuery(err), "Invalid query parameters")
		return
	}

	page, err := c.svc.ListOrders(ctx.Request.Context(), cred, service.ListQuery{
		Limit:  req.Limit,
		Offset: req.Offset,
		Sync:   req.Sync,
	})
	if err != nil {
		c.fail(ctx, err, "Failed to fetch orders")
		return
	}

	ctx.JSON(http.StatusOK, dto.ListOrdersResponse{
		Success: true,
		Data:    nonNilOrders(page.Orders),
		Pagination: dto.Pagination{
			Limit:  page.Limit,
			Offset: page.Offset,
			Total:  page.Total,
		},
	})
}

// Recent 近 60 天订单
// GET /api/orders/last-60-days
func (c *OrderController) Recent(ctx *gin.Context) {
	cred, ok := middleware.GetCredential(ctx)
	if !ok {
		c.fail(ctx, apperr.Validation("missing credential"), "Missing shop or access token in headers")
		return
	}

	orders, err := c.svc.ListRecentOrders(ctx.Request.Context(), cred.Shop)
	if err != nil {
		c.fail(ctx, err, "Failed to fetch orders")
		return
	}

	ctx.JSON(http.StatusOK, dto.RecentOrdersResponse{
		Success: true,
		Data:    nonNilOrders(orders),
		Count:   len(orders),
	})
}

// GetByID 订单详情，本地不存在时从 Shopify 拉取
// GET /api/orders/:id
func (c *OrderController) GetByID(ctx *gin.Context) {
	cred, ok := middleware.GetCredential(ctx)
	if !ok {
		c.fail(ctx, apperr.Validation("missing credential"), "Missing shop or access token in headers")
		return
	}

	order, err := c.svc.FetchOrCreateOrder(ctx.Request.Context(), cred, ctx.Param("id"))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			c.fail(ctx, err, "Order not found")
			return
		}
		c.fail(ctx, err, "Failed to fetch order details")
		return
	}

	ctx.JSON(http.StatusOK, dto.OrderDetailResponse{Success: true, Data: order})
}

// ==================== 订单同步 ====================

// Sync 手动同步
// POST /api/sync/orders?mode=rest|graphql
func (c *OrderController) Sync(ctx *gin.Context) {
	cred, ok := middleware.GetCredential(ctx)
	if !ok {
		c.fail(ctx, apperr.Validation("missing credential"), "Missing shop or access token in headers")
		return
	}

	var req dto.SyncOrdersRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		c.fail(ctx, invalidQuery(err), "Invalid query parameters")
		return
	}
	mode, err := service.ParseSyncMode(req.Mode, c.svc.DefaultMode())
	if err != nil {
		c.fail(ctx, err, "Invalid sync mode")
		return
	}

	result, err := c.svc.SyncOrders(ctx.Request.Context(), cred, mode)
	if err != nil {
		c.fail(ctx, err, "Failed to sync orders")
		return
	}

	ctx.JSON(http.StatusOK, dto.SyncOrdersResponse{
		Success: true,
		Message: fmt.Sprintf("Synced %d orders", result.Synced),
		Data:    nonNilOrders(result.Orders),
		Stats: dto.SyncStats{
			Mode:      string(result.Mode),
			Fetched:   result.Fetched,
			Synced:    result.Synced,
			Skipped:   result.Skipped,
			Truncated: result.Truncated,
		},
	})
}

// ==================== 辅助函数 ====================

// fail 按错误类型返回状态码，响应体只带对外文案，原始错误写日志
func (c *OrderController) fail(ctx *gin.Context, err error, message string) {
	status := apperr.StatusCode(err)
	log := logger.FromContext(ctx.Request.Context(), c.log)
	if status >= http.StatusInternalServerError {
		log.Error(message, zap.String("path", ctx.FullPath()), zap.Error(err))
	} else {
		log.Warn(message, zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	_ = ctx.Error(err)
	ctx.JSON(status, dto.ErrorResponse{Error: message})
}

// invalidQuery 绑定错误只写日志，校验器细节不返回给客户端
func invalidQuery(err error) error {
	e := apperr.Validation("查询参数无效")
	e.Err = err
	return e
}

func nonNilOrders(orders []model.Order) []model.Order {
	if orders == nil {
		return []model.Order{}
	}
	return orders
}
