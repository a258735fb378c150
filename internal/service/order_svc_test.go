package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/internal/repository"
	"shopify_order_sync/pkg/shopify"
)

const testShop = "demo.myshopify.com"

// ==================== 测试辅助 ====================

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

// fakeShop 可在测试中修改返回内容的模拟店铺
type fakeShop struct {
	mu       sync.Mutex
	orders   string // REST orders 数组的 JSON
	status   int
	single   string // GraphQL order 节点 JSON，"null" 表示不存在
	requests int32
}

func (f *fakeShop) set(orders string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func (f *fakeShop) handler(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.requests, 1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"errors":"unavailable"}`)
		return
	}
	if r.Method == http.MethodPost {
		var req shopify.GraphQLRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := req.Variables["id"]; ok {
			_, _ = io.WriteString(w, `{"data":{"order":`+f.single+`}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"orders":{"edges":[{"cursor":"c1","node":`+f.single+`}],"pageInfo":{"hasNextPage":false,"endCursor":"c1"}}}}`)
		return
	}
	_, _ = io.WriteString(w, `{"orders":`+f.orders+`}`)
}

func newTestOrderService(t *testing.T, shop *fakeShop) (*OrderService, repository.OrderRepository, shopify.Credential) {
	t.Helper()
	client, cred := newShopifyServer(t, shop.handler)
	repo := repository.NewOrderRepository(setupServiceTestDB(t))
	svc := NewOrderService(repo, client, OrderServiceConfig{RecentDays: 60}, zap.NewNop())
	return svc, repo, cred
}

func restOrder(id int, status, total, email string, items ...string) string {
	lines := "[]"
	if len(items) > 0 {
		lines = "["
		for i, it := range items {
			if i > 0 {
				lines += ","
			}
			lines += it
		}
		lines += "]"
	}
	return fmt.Sprintf(`{"id":%d,"email":%q,"created_at":%q,"financial_status":%q,"total_price":%q,"currency":"USD",
		"customer":{"email":%q,"first_name":"Jane","last_name":"Doe"},"line_items":%s}`,
		id, email, time.Now().UTC().Add(-time.Hour).Format(time.RFC3339), status, total, email, lines)
}

func restLine(id, qty int, price string) string {
	return fmt.Sprintf(`{"id":%d,"product_id":7001,"variant_id":8001,"title":"Mug","quantity":%d,"price":%q,"sku":"MUG"}`, id, qty, price)
}

// ==================== 同步 ====================

func TestOrderService_SyncOrders(t *testing.T) {
	shop := &fakeShop{}
	shop.set("[" + restOrder(5001, "paid", "10.00", "a@example.com", restLine(1, 2, "5.00")) + "," +
		restOrder(5002, "pending", "3.00", "b@example.com") + "]")
	svc, repo, cred := newTestOrderService(t, shop)
	ctx := context.Background()

	result, err := svc.SyncOrders(ctx, cred, SyncModeREST)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Orders, 2)
	assert.Len(t, result.Orders[0].Items, 1)
	assert.NotNil(t, result.Orders[1].Items)

	count, err := repo.CountByShop(ctx, cred.Shop)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestOrderService_SyncOrders_Idempotent(t *testing.T) {
	shop := &fakeShop{}
	shop.set("[" + restOrder(5001, "paid", "10.00", "a@example.com", restLine(1, 2, "5.00"), restLine(2, 1, "1.00")) + "]")
	svc, repo, cred := newTestOrderService(t, shop)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.SyncOrders(ctx, cred, SyncModeREST)
		require.NoError(t, err)
	}

	count, err := repo.CountByShop(ctx, cred.Shop)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	items, err := repo.ListItems(ctx, cred.Shop, "5001")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestOrderService_SyncOrders_UpdatesFinancialFieldsOnly(t *testing.T) {
	shop := &fakeShop{}
	shop.set("[" + restOrder(5001, "pending", "10.00", "first@example.com", restLine(1, 1, "10.00")) + "]")
	svc, repo, cred := newTestOrderService(t, shop)
	ctx := context.Background()

	_, err := svc.SyncOrders(ctx, cred, SyncModeREST)
	require.NoError(t, err)

	shop.set("[" + restOrder(5001, "paid", "12.50", "second@example.com", restLine(1, 1, "12.50")) + "]")
	_, err = svc.SyncOrders(ctx, cred, SyncModeREST)
	require.NoError(t, err)

	order, err := repo.GetByShopAndOrderID(ctx, cred.Shop, "5001")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "paid", order.Status)
	assert.True(t, decimal.RequireFromString("12.50").Equal(order.TotalPrice))
	assert.Equal(t, "first@example.com", order.CustomerEmail)

	items, err := repo.ListItems(ctx, cred.Shop, "5001")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, decimal.RequireFromString("12.50").Equal(items[0].Price))
}

func TestOrderService_SyncOrders_SkipsMalformedOrders(t *testing.T) {
	shop := &fakeShop{}
	shop.set("[" + restOrder(5001, "paid", "abc", "a@example.com") + "," + restOrder(5002, "paid", "1.00", "b@example.com") + "]")
	svc, repo, cred := newTestOrderService(t, shop)

	result, err := svc.SyncOrders(context.Background(), cred, SyncModeREST)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Synced)

	missing, err := repo.GetByShopAndOrderID(context.Background(), cred.Shop, "5001")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderService_SyncOrders_FetchErrorWritesNothing(t *testing.T) {
	shop := &fakeShop{status: http.StatusServiceUnavailable}
	svc, repo, cred := newTestOrderService(t, shop)

	result, err := svc.SyncOrders(context.Background(), cred, SyncModeREST)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperr.Is(err, apperr.KindFetch))

	count, err := repo.CountByShop(context.Background(), cred.Shop)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOrderService_SyncOrders_GraphQL(t *testing.T) {
	shop := &fakeShop{single: `{"id":"gid://shopify/Order/6001","displayFinancialStatus":"PAID",
		"totalPriceSet":{"shopMoney":{"amount":"20.0","currencyCode":"EUR"}}}`}
	svc, repo, cred := newTestOrderService(t, shop)

	result, err := svc.SyncOrders(context.Background(), cred, SyncModeGraphQL)
	require.NoError(t, err)
	assert.Equal(t, SyncModeGraphQL, result.Mode)
	assert.Equal(t, 1, result.Synced)

	order, err := repo.GetByShopAndOrderID(context.Background(), cred.Shop, "6001")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "paid", order.Status)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, model.GuestCustomerName, order.CustomerName)
}

func TestOrderService_SyncOrders_MissingCredential(t *testing.T) {
	svc, _, cred := newTestOrderService(t, &fakeShop{})
	cred.AccessToken = ""

	_, err := svc.SyncOrders(context.Background(), cred, SyncModeREST)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

// ==================== 单个订单自愈 ====================

func TestOrderService_FetchOrCreateOrder_SelfHeals(t *testing.T) {
	shop := &fakeShop{single: `{"id":"gid://shopify/Order/7001","displayFinancialStatus":"PAID",
		"totalPriceSet":{"shopMoney":{"amount":"9.99","currencyCode":"USD"}},
		"lineItems":{"edges":[{"node":{"id":"gid://shopify/LineItem/1","title":"Cap","quantity":1,
			"originalUnitPriceSet":{"shopMoney":{"amount":"9.99","currencyCode":"USD"}}}}]}}`}
	svc, repo, cred := newTestOrderService(t, shop)
	ctx := context.Background()

	order, err := svc.FetchOrCreateOrder(ctx, cred, "7001")
	require.NoError(t, err)
	assert.Equal(t, "7001", order.OrderID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Cap", order.Items[0].Title)

	stored, err := repo.GetByShopAndOrderID(ctx, cred.Shop, "7001")
	require.NoError(t, err)
	require.NotNil(t, stored)

	// 第二次命中本地，不再请求上游
	again, err := svc.FetchOrCreateOrder(ctx, cred, "7001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&shop.requests))
}

func TestOrderService_FetchOrCreateOrder_NotFound(t *testing.T) {
	svc, _, cred := newTestOrderService(t, &fakeShop{single: "null"})

	_, err := svc.FetchOrCreateOrder(context.Background(), cred, "404")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))
}

func TestOrderService_FetchOrCreateOrder_UpstreamError(t *testing.T) {
	svc, _, cred := newTestOrderService(t, &fakeShop{status: http.StatusBadGateway})

	_, err := svc.FetchOrCreateOrder(context.Background(), cred, "1")
	assert.True(t, apperr.Is(err, apperr.KindFetch))
}

// ==================== 查询 ====================

func TestOrderService_ListOrders_SyncFailureIsNotFatal(t *testing.T) {
	shop := &fakeShop{}
	shop.set("[" + restOrder(5001, "paid", "10.00", "a@example.com", restLine(1, 1, "10.00")) + "]")
	svc, _, cred := newTestOrderService(t, shop)
	ctx := context.Background()

	_, err := svc.SyncOrders(ctx, cred, SyncModeREST)
	require.NoError(t, err)

	shop.mu.Lock()
	shop.status = http.StatusInternalServerError
	shop.mu.Unlock()

	page, err := svc.ListOrders(ctx, cred, ListQuery{Limit: 50, Sync: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Orders, 1)
	assert.Len(t, page.Orders[0].Items, 1)
}

func TestOrderService_ListRecentOrders(t *testing.T) {
	svc, repo, cred := newTestOrderService(t, &fakeShop{})
	ctx := context.Background()
	now := time.Now().UTC()

	for id, age := range map[string]int{"old": 90, "new": 3} {
		_, err := repo.SaveOrder(ctx, &model.Order{
			Shop:       cred.Shop,
			OrderID:    id,
			Status:     "paid",
			TotalPrice: decimal.NewFromInt(1),
			CreatedAt:  now.AddDate(0, 0, -age),
		}, nil)
		require.NoError(t, err)
	}

	orders, err := svc.ListRecentOrders(ctx, cred.Shop)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "new", orders[0].OrderID)
	assert.NotNil(t, orders[0].Items)
}
