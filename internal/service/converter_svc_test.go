package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/pkg/shopify"
)

// ==================== 测试数据 ====================

func decodeREST(t *testing.T, raw string) shopify.RestOrder {
	t.Helper()
	var o shopify.RestOrder
	require.NoError(t, json.Unmarshal([]byte(raw), &o))
	return o
}

func decodeGraphQL(t *testing.T, raw string) shopify.GraphQLOrder {
	t.Helper()
	var o shopify.GraphQLOrder
	require.NoError(t, json.Unmarshal([]byte(raw), &o))
	return o
}

const restOrderJSON = `{
	"id": 5001,
	"email": "order@example.com",
	"created_at": "2025-03-01T10:00:00-05:00",
	"financial_status": "partially_refunded",
	"total_price": "12.50",
	"currency": "USD",
	"customer": {"email": "jane@example.com", "first_name": " Jane ", "last_name": "Doe"},
	"line_items": [
		{"id": 9001, "product_id": 7001, "variant_id": 8001, "title": "Mug", "quantity": 2, "price": "5.00", "sku": "MUG-1"},
		{"id": 9002, "product_id": 7002, "variant_id": 8002, "title": "Gift card", "quantity": 1, "price": "2.50", "sku": "MUG-2"}
	]
}`

const graphQLOrderJSON = `{
	"id": "gid://shopify/Order/5001",
	"email": "order@example.com",
	"createdAt": "2025-03-01T15:00:00Z",
	"displayFinancialStatus": "PARTIALLY_REFUNDED",
	"totalPriceSet": {"shopMoney": {"amount": "12.5", "currencyCode": "USD"}},
	"customer": {"email": "jane@example.com", "firstName": "Jane", "lastName": "Doe"},
	"lineItems": {"edges": [
		{"node": {"id": "gid://shopify/LineItem/9001", "title": "Mug", "quantity": 2, "sku": "MUG-1",
			"originalUnitPriceSet": {"shopMoney": {"amount": "5.0", "currencyCode": "USD"}},
			"variant": {"id": "gid://shopify/ProductVariant/8001", "product": {"id": "gid://shopify/Product/7001"}}}},
		{"node": {"id": "gid://shopify/LineItem/9002", "title": "Gift card", "quantity": 1, "sku": "MUG-2",
			"originalTotalSet": {"shopMoney": {"amount": "2.50", "currencyCode": "USD"}},
			"variant": {"id": "gid://shopify/ProductVariant/8002", "product": {"id": "gid://shopify/Product/7002"}}}}
	]}
}`

// ==================== 规范化 ====================

func TestNormalizeOrder_REST(t *testing.T) {
	got, err := NormalizeOrder(testShop, FromREST(decodeREST(t, restOrderJSON)))
	require.NoError(t, err)

	o := got.Order
	assert.Equal(t, testShop, o.Shop)
	assert.Equal(t, "5001", o.OrderID)
	assert.Equal(t, model.FinancialStatusPartiallyRefunded, o.Status)
	assert.Equal(t, "12.5", o.TotalPrice.String())
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, "jane@example.com", o.CustomerEmail)
	assert.Equal(t, "Jane Doe", o.CustomerName)
	assert.True(t, time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC).Equal(o.CreatedAt))

	require.Len(t, got.Items, 2)
	assert.Equal(t, "9001", got.Items[0].LineItemID)
	assert.Equal(t, "7001", got.Items[0].ProductID)
	assert.Equal(t, "8001", got.Items[0].VariantID)
	assert.Equal(t, "5001", got.Items[0].OrderID)
	assert.Nil(t, got.Items[0].ImageURL)
}

func TestNormalizeOrder_RESTAndGraphQLEquivalent(t *testing.T) {
	fromREST, err := NormalizeOrder(testShop, FromREST(decodeREST(t, restOrderJSON)))
	require.NoError(t, err)
	fromGraphQL, err := NormalizeOrder(testShop, FromGraphQL(decodeGraphQL(t, graphQLOrderJSON)))
	require.NoError(t, err)

	a, err := json.Marshal(fromREST)
	require.NoError(t, err)
	b, err := json.Marshal(fromGraphQL)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, string(a), string(b))
}

func TestNormalizeOrder_GraphQLImageAndSKU(t *testing.T) {
	raw := decodeGraphQL(t, `{
		"id": "gid://shopify/Order/1",
		"lineItems": {"edges": [{"node": {"id": "gid://shopify/LineItem/2", "quantity": 1, "sku": null,
			"variant": {"id": "gid://shopify/ProductVariant/3", "image": {"url": "https://cdn/x.png"}}}}]}
	}`)

	got, err := NormalizeOrder(testShop, FromGraphQL(raw))
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	item := got.Items[0]
	assert.Equal(t, "", item.SKU)
	require.NotNil(t, item.ImageURL)
	assert.Equal(t, "https://cdn/x.png", *item.ImageURL)
	assert.Equal(t, "", item.ProductID)
	assert.True(t, item.Price.IsZero())
	assert.True(t, got.Order.TotalPrice.IsZero())
}

func TestNormalizeOrder_GraphQLUnitPriceFromLineTotal(t *testing.T) {
	raw := decodeGraphQL(t, `{
		"id": "gid://shopify/Order/1",
		"lineItems": {"edges": [{"node": {"id": "gid://shopify/LineItem/2", "quantity": 3,
			"originalTotalSet": {"shopMoney": {"amount": "30.00", "currencyCode": "USD"}}}}]}
	}`)

	got, err := NormalizeOrder(testShop, FromGraphQL(raw))
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	item := got.Items[0]
	assert.True(t, decimal.RequireFromString("10.00").Equal(item.Price), item.Price.String())
	assert.True(t, decimal.RequireFromString("30.00").Equal(item.LineTotal()))
}

func TestNormalizeOrder_CustomerNameFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"顾客姓名", `{"id":1,"customer":{"first_name":"Jane","last_name":""}}`, "Jane"},
		{"账单地址", `{"id":1,"customer":{"first_name":" ","last_name":""},"billing_address":{"name":"Bill Payer"}}`, "Bill Payer"},
		{"无顾客", `{"id":1}`, model.GuestCustomerName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeOrder(testShop, FromREST(decodeREST(t, tt.raw)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Order.CustomerName)
		})
	}
}

func TestNormalizeOrder_EmailFallsBackToOrderEmail(t *testing.T) {
	got, err := NormalizeOrder(testShop, FromREST(decodeREST(t, `{"id":1,"email":"o@example.com"}`)))
	require.NoError(t, err)
	assert.Equal(t, "o@example.com", got.Order.CustomerEmail)
}

func TestNormalizeOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  RawOrder
	}{
		{"缺少订单 id", FromREST(decodeREST(t, `{"total_price":"1.00"}`))},
		{"金额格式错误", FromREST(decodeREST(t, `{"id":1,"total_price":"abc"}`))},
		{"订单项缺少 id", FromREST(decodeREST(t, `{"id":1,"line_items":[{"quantity":1}]}`))},
		{"订单项数量为负", FromREST(decodeREST(t, `{"id":1,"line_items":[{"id":2,"quantity":-1}]}`))},
		{"GraphQL 金额错误", FromGraphQL(decodeGraphQL(t, `{"id":"gid://shopify/Order/1","totalPriceSet":{"shopMoney":{"amount":"1,00"}}}`))},
		{"未知格式", RawOrder{Kind: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeOrder(testShop, tt.raw)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindNormalization))
		})
	}
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "5001", LastSegment("gid://shopify/Order/5001"))
	assert.Equal(t, "5001", LastSegment("5001"))
	assert.Equal(t, "b", LastSegment("a/b"))
	assert.Equal(t, "", LastSegment(""))
}

func TestParseMoney(t *testing.T) {
	d, err := parseMoney("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseMoney("10.005")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.01").Equal(d))
}
