package shopify

import (
	"fmt"
	"strings"
	"time"
)

// PageSize REST 与 GraphQL 单页最大条数
const PageSize = 250

// LineItemPageSize 订单行续页单页条数，订单查询内嵌首页固定 100 条
const LineItemPageSize = 250

const lineItemFields = `
      edges {
        node {
          id
          title
          quantity
          sku
          originalUnitPriceSet { shopMoney { amount currencyCode } }
          originalTotalSet { shopMoney { amount currencyCode } }
          variant { id image { url } product { id } }
        }
      }
      pageInfo { hasNextPage endCursor }`

const orderFields = `
    id
    name
    email
    createdAt
    displayFinancialStatus
    totalPriceSet { shopMoney { amount currencyCode } }
    customer { email firstName lastName }
    billingAddress { name }
    lineItems(first: 100) {` + lineItemFields + `
    }`

// OrdersQuery 游标分页拉取订单
var OrdersQuery = `query Orders($first: Int!, $after: String, $query: String) {
  orders(first: $first, after: $after, query: $query, sortKey: CREATED_AT) {
    edges {
      cursor
      node {` + orderFields + `
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

// OrderQuery 按 GID 拉取单个订单
var OrderQuery = `query Order($id: ID!) {
  order(id: $id) {` + orderFields + `
  }
}`

// LineItemsQuery 订单行超过首页容量时按游标续拉
var LineItemsQuery = `query OrderLineItems($id: ID!, $first: Int!, $after: String) {
  order(id: $id) {
    lineItems(first: $first, after: $after) {` + lineItemFields + `
    }
  }
}`

// GraphQLRequest GraphQL 请求体
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// CreatedSinceFilter 生成 created_at 过滤条件，例如 created_at:>=2025-01-01
func CreatedSinceFilter(since time.Time) string {
	return "created_at:>=" + since.UTC().Format("2006-01-02")
}

// OrderGID 把数字订单号转成 GID，已是 GID 时原样返回
func OrderGID(orderID string) string {
	if strings.HasPrefix(orderID, "gid://") {
		return orderID
	}
	return fmt.Sprintf("gid://shopify/Order/%s", orderID)
}
