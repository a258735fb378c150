package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/pkg/shopify"
)

// DefaultMaxOrders 单次同步累计订单数上限
const DefaultMaxOrders = 10000

// SyncMode 拉取方式
type SyncMode string

const (
	SyncModeREST    SyncMode = "rest"    // 全量 REST 扫描
	SyncModeGraphQL SyncMode = "graphql" // 按时间窗口的 GraphQL 扫描
)

// ParseSyncMode 空值返回 fallback
func ParseSyncMode(s string, fallback SyncMode) (SyncMode, error) {
	switch SyncMode(s) {
	case "":
		return fallback, nil
	case SyncModeREST, SyncModeGraphQL:
		return SyncMode(s), nil
	default:
		return "", apperr.Validation(fmt.Sprintf("不支持的同步方式: %s", s))
	}
}

// ==================== 依赖接口 ====================

// OrderSource Shopify 订单数据源，*shopify.Client 实现该接口
type OrderSource interface {
	OrdersURL(shop string) string
	ListOrdersPage(ctx context.Context, cred shopify.Credential, pageURL string) (*shopify.RestOrdersPage, error)
	QueryOrdersPage(ctx context.Context, cred shopify.Credential, filter, after string) (*shopify.GraphQLOrdersPage, error)
	GetOrder(ctx context.Context, cred shopify.Credential, orderID string) (*shopify.GraphQLOrder, error)
}

var _ OrderSource = (*shopify.Client)(nil)

// ==================== OrderWalker ====================

// WalkResult 一次分页遍历的结果
type WalkResult struct {
	Orders    []RawOrder
	Pages     int
	Truncated bool // 因达到上限提前结束
}

// OrderWalker 顺序翻页拉取订单，同一时刻最多一个请求在途
type OrderWalker struct {
	source    OrderSource
	maxOrders int
	window    time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewOrderWalker 创建分页遍历器
func NewOrderWalker(source OrderSource, maxOrders, windowDays int, logger *zap.Logger) *OrderWalker {
	if maxOrders <= 0 {
		maxOrders = DefaultMaxOrders
	}
	if windowDays <= 0 {
		windowDays = 60
	}
	return &OrderWalker{
		source:    source,
		maxOrders: maxOrders,
		window:    time.Duration(windowDays) * 24 * time.Hour,
		now:       time.Now,
		log:       logger.Named("walker"),
	}
}

// Walk 按 mode 分派
func (w *OrderWalker) Walk(ctx context.Context, cred shopify.Credential, mode SyncMode) (*WalkResult, error) {
	switch mode {
	case SyncModeGraphQL:
		return w.WalkGraphQL(ctx, cred)
	case SyncModeREST, "":
		return w.WalkREST(ctx, cred)
	default:
		return nil, apperr.Validation(fmt.Sprintf("不支持的同步方式: %s", mode))
	}
}

// WalkREST 沿 Link 头的 rel="next" 翻页，直到没有下一页
// 任意一页失败则丢弃已拉取的数据
func (w *OrderWalker) WalkREST(ctx context.Context, cred shopify.Credential) (*WalkResult, error) {
	result := &WalkResult{}
	pageURL := w.source.OrdersURL(cred.Shop)

	for pageURL != "" {
		page, err := w.source.ListOrdersPage(ctx, cred, pageURL)
		if err != nil {
			return nil, apperr.Fetch(fmt.Sprintf("拉取第 %d 页订单失败", result.Pages+1), err)
		}
		result.Pages++
		for _, o := range page.Orders {
			result.Orders = append(result.Orders, FromREST(o))
		}

		if w.capReached(cred.Shop, result) {
			break
		}
		if page.NextURL == pageURL {
			w.log.Warn("下一页地址与当前页相同，停止翻页", zap.String("shop", cred.Shop), zap.String("url", pageURL))
			break
		}
		pageURL = page.NextURL
	}

	w.log.Debug("REST 翻页完成",
		zap.String("shop", cred.Shop),
		zap.Int("pages", result.Pages),
		zap.Int("orders", len(result.Orders)),
	)
	return result, nil
}

// WalkGraphQL 拉取时间窗口内的订单，按 pageInfo 游标翻页
func (w *OrderWalker) WalkGraphQL(ctx context.Context, cred shopify.Credential) (*WalkResult, error) {
	result := &WalkResult{}
	filter := shopify.CreatedSinceFilter(w.now().Add(-w.window))
	cursor := ""

	for {
		page, err := w.source.QueryOrdersPage(ctx, cred, filter, cursor)
		if err != nil {
			return nil, apperr.Fetch(fmt.Sprintf("拉取第 %d 页订单失败", result.Pages+1), err)
		}
		result.Pages++
		for _, o := range page.Orders {
			result.Orders = append(result.Orders, FromGraphQL(o))
		}

		if !page.PageInfo.HasNextPage || w.capReached(cred.Shop, result) {
			break
		}
		if page.PageInfo.EndCursor == "" || page.PageInfo.EndCursor == cursor {
			w.log.Warn("游标未前进，停止翻页", zap.String("shop", cred.Shop), zap.String("cursor", cursor))
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	w.log.Debug("GraphQL 翻页完成",
		zap.String("shop", cred.Shop),
		zap.String("filter", filter),
		zap.Int("pages", result.Pages),
		zap.Int("orders", len(result.Orders)),
	)
	return result, nil
}

// capReached 累计数量超过上限时记录告警并标记截断
func (w *OrderWalker) capReached(shop string, result *WalkResult) bool {
	if len(result.Orders) <= w.maxOrders {
		return false
	}
	result.Truncated = true
	w.log.Warn("订单数量超过上限，提前结束翻页",
		zap.String("shop", shop),
		zap.Int("limit", w.maxOrders),
		zap.Int("fetched", len(result.Orders)),
		zap.Int("pages", result.Pages),
	)
	return true
}
