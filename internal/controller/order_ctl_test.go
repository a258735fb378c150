package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/middleware"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/internal/service"
	"shopify_order_sync/pkg/shopify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ==================== 模拟服务 ====================

type fakeOrderService struct {
	calls     int
	lastQuery service.ListQuery
	lastMode  service.SyncMode
	lastCred  shopify.Credential
	orders    []model.Order
	err       error
}

func (f *fakeOrderService) ListOrders(_ context.Context, cred shopify.Credential, q service.ListQuery) (*service.OrderPage, error) {
	f.calls++
	f.lastCred, f.lastQuery = cred, q
	if f.err != nil {
		return nil, f.err
	}
	return &service.OrderPage{Orders: f.orders, Limit: q.Limit, Offset: q.Offset, Total: int64(len(f.orders))}, nil
}

func (f *fakeOrderService) ListRecentOrders(_ context.Context, shop string) ([]model.Order, error) {
	f.calls++
	f.lastCred.Shop = shop
	return f.orders, f.err
}

func (f *fakeOrderService) FetchOrCreateOrder(_ context.Context, cred shopify.Credential, orderID string) (*model.Order, error) {
	f.calls++
	f.lastCred = cred
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.orders {
		if f.orders[i].OrderID == orderID {
			return &f.orders[i], nil
		}
	}
	return nil, apperr.NotFound("订单不存在")
}

func (f *fakeOrderService) SyncOrders(_ context.Context, cred shopify.Credential, mode service.SyncMode) (*service.SyncResult, error) {
	f.calls++
	f.lastCred, f.lastMode = cred, mode
	if f.err != nil {
		return nil, f.err
	}
	return &service.SyncResult{Shop: cred.Shop, Mode: mode, Fetched: len(f.orders), Synced: len(f.orders), Orders: f.orders}, nil
}

func (f *fakeOrderService) DefaultMode() service.SyncMode { return service.SyncModeREST }

// ==================== 请求构造辅助 ====================

func setupOrderRouter(svc OrderService) *gin.Engine {
	r := gin.New()
	ctl := NewOrderController(svc, zap.NewNop())
	api := r.Group("/api", middleware.ShopHeaders())
	api.GET("/orders", ctl.List)
	api.GET("/orders/last-60-days", ctl.Recent)
	api.GET("/orders/:id", ctl.GetByID)
	api.POST("/sync/orders", ctl.Sync)
	r.GET("/health", Health)
	return r
}

func perform(r http.Handler, method, path string, withCred bool) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	if withCred {
		req.Header.Set(middleware.HeaderShopDomain, "demo.myshopify.com")
		req.Header.Set(middleware.HeaderAccessToken, "shpat_test")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func sampleOrders() []model.Order {
	return []model.Order{{
		Shop:       "demo.myshopify.com",
		OrderID:    "5001",
		Status:     "paid",
		TotalPrice: decimal.RequireFromString("12.50"),
		Currency:   "USD",
		CreatedAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Items:      []model.OrderItem{{LineItemID: "1", Quantity: 1, Price: decimal.RequireFromString("12.50")}},
	}}
}

// ==================== 凭证校验 ====================

func TestOrderController_MissingCredential(t *testing.T) {
	svc := &fakeOrderService{}
	r := setupOrderRouter(svc)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/last-60-days"},
		{http.MethodGet, "/api/orders/5001"},
		{http.MethodPost, "/api/sync/orders"},
	} {
		w := perform(r, tc.method, tc.path, false)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.path)
	}
	assert.Zero(t, svc.calls)
}

// ==================== 列表 ====================

func TestOrderController_List(t *testing.T) {
	svc := &fakeOrderService{orders: sampleOrders()}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodGet, "/api/orders?limit=10&offset=5&sync=true", true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(10), pagination["limit"])
	assert.Equal(t, float64(5), pagination["offset"])
	assert.Equal(t, float64(1), pagination["total"])

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	order := data[0].(map[string]interface{})
	assert.Equal(t, "5001", order["order_id"])
	assert.Len(t, order["items"], 1)

	assert.True(t, svc.lastQuery.Sync)
	assert.Equal(t, "demo.myshopify.com", svc.lastCred.Shop)
}

func TestOrderController_List_Defaults(t *testing.T) {
	svc := &fakeOrderService{}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodGet, "/api/orders", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, svc.lastQuery.Limit)
	assert.Equal(t, 0, svc.lastQuery.Offset)
	assert.False(t, svc.lastQuery.Sync)

	body := decodeBody(t, w)
	assert.Equal(t, []interface{}{}, body["data"])
}

func TestOrderController_List_InvalidParams(t *testing.T) {
	svc := &fakeOrderService{}
	r := setupOrderRouter(svc)

	for _, path := range []string{"/api/orders?limit=0", "/api/orders?limit=251", "/api/orders?offset=-1", "/api/orders?limit=abc"} {
		w := perform(r, http.MethodGet, path, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "Invalid query parameters", decodeBody(t, w)["error"], path)
		assert.NotContains(t, w.Body.String(), "ListOrdersRequest", path)
	}
	assert.Zero(t, svc.calls)
}

func TestOrderController_List_StoreError(t *testing.T) {
	svc := &fakeOrderService{err: apperr.Store("查询订单列表失败", errors.New("connection refused"))}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodGet, "/api/orders", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to fetch orders", body["error"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestOrderController_Recent(t *testing.T) {
	svc := &fakeOrderService{orders: sampleOrders()}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodGet, "/api/orders/last-60-days", true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])
}

// ==================== 详情 ====================

func TestOrderController_GetByID(t *testing.T) {
	svc := &fakeOrderService{orders: sampleOrders()}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodGet, "/api/orders/5001", true)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "5001", data["order_id"])

	w = perform(r, http.MethodGet, "/api/orders/404", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Order not found", decodeBody(t, w)["error"])
}

func TestOrderController_GetByID_UpstreamFailure(t *testing.T) {
	svc := &fakeOrderService{err: apperr.Fetch("拉取订单详情失败", &shopify.FetchError{StatusCode: 502})}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodGet, "/api/orders/5001", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to fetch order details", decodeBody(t, w)["error"])
}

// ==================== 同步 ====================

func TestOrderController_Sync(t *testing.T) {
	svc := &fakeOrderService{orders: sampleOrders()}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodPost, "/api/sync/orders?mode=graphql", true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Synced 1 orders", body["message"])
	assert.Equal(t, service.SyncModeGraphQL, svc.lastMode)

	w = perform(r, http.MethodPost, "/api/sync/orders", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.SyncModeREST, svc.lastMode)
}

func TestOrderController_Sync_InvalidMode(t *testing.T) {
	svc := &fakeOrderService{}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodPost, "/api/sync/orders?mode=soap", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid query parameters", decodeBody(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "oneof")
	assert.Zero(t, svc.calls)
}

func TestOrderController_Sync_Failure(t *testing.T) {
	svc := &fakeOrderService{err: apperr.Fetch("拉取第 1 页订单失败", errors.New("timeout"))}
	r := setupOrderRouter(svc)

	w := perform(r, http.MethodPost, "/api/sync/orders", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to sync orders", decodeBody(t, w)["error"])
}

// ==================== 健康检查 ====================

func TestHealth(t *testing.T) {
	r := setupOrderRouter(&fakeOrderService{})

	w := perform(r, http.MethodGet, "/health", false)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "OK", body["status"])
	_, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string))
	assert.NoError(t, err)
}
