package shopify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID Shopify 标识符
// REST 返回数字 (5001)，GraphQL 返回 GID 字符串 ("gid://shopify/Order/5001")，统一按字符串保存原文
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("无效的 Shopify ID %s: %w", string(b), err)
	}
	*id = ID(n.String())
	return nil
}

// ==================== REST 结构 ====================

// RestOrdersResponse GET /orders.json
type RestOrdersResponse struct {
	Orders []RestOrder `json:"orders"`
}

// RestOrder REST 订单（仅保留同步所需字段）
type RestOrder struct {
	ID              ID             `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	CreatedAt       string         `json:"created_at"`
	FinancialStatus string         `json:"financial_status"`
	TotalPrice      string         `json:"total_price"`
	Currency        string         `json:"currency"`
	Customer        *RestCustomer  `json:"customer"`
	BillingAddress  *RestAddress   `json:"billing_address"`
	LineItems       []RestLineItem `json:"line_items"`
}

// RestCustomer REST 顾客
type RestCustomer struct {
	ID        ID     `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RestAddress REST 地址
type RestAddress struct {
	Name string `json:"name"`
}

// RestLineItem REST 订单行
type RestLineItem struct {
	ID        ID     `json:"id"`
	ProductID ID     `json:"product_id"`
	VariantID ID     `json:"variant_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	SKU       string `json:"sku"`
}

// RestOrdersPage 一页 REST 订单及下一页地址
type RestOrdersPage struct {
	Orders  []RestOrder
	NextURL string // 为空表示没有下一页
}

// ==================== GraphQL 结构 ====================

// GraphQLError GraphQL errors 数组中的元素
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// GraphQLOrdersResponse orders 查询响应
type GraphQLOrdersResponse struct {
	Data struct {
		Orders struct {
			Edges []struct {
				Cursor string       `json:"cursor"`
				Node   GraphQLOrder `json:"node"`
			} `json:"edges"`
			PageInfo PageInfo `json:"pageInfo"`
		} `json:"orders"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// GraphQLOrderResponse order(id:) 查询响应
type GraphQLOrderResponse struct {
	Data struct {
		Order *GraphQLOrder `json:"order"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// PageInfo 游标分页信息
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// GraphQLOrdersPage 一页 GraphQL 订单
type GraphQLOrdersPage struct {
	Orders   []GraphQLOrder
	PageInfo PageInfo
}

// GraphQLOrder GraphQL 订单
type GraphQLOrder struct {
	ID                     ID                 `json:"id"`
	Name                   string             `json:"name"`
	Email                  string             `json:"email"`
	CreatedAt              string             `json:"createdAt"`
	DisplayFinancialStatus string             `json:"displayFinancialStatus"`
	TotalPriceSet          *MoneyBag          `json:"totalPriceSet"`
	Customer               *GraphQLCustomer   `json:"customer"`
	BillingAddress         *GraphQLAddress    `json:"billingAddress"`
	LineItems              LineItemConnection `json:"lineItems"`
}

// LineItemConnection 订单行分页连接
type LineItemConnection struct {
	Edges []struct {
		Node GraphQLLineItem `json:"node"`
	} `json:"edges"`
	PageInfo PageInfo `json:"pageInfo"`
}

// GraphQLLineItemsResponse 订单行续页查询响应
type GraphQLLineItemsResponse struct {
	Data struct {
		Order *struct {
			LineItems LineItemConnection `json:"lineItems"`
		} `json:"order"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// MoneyBag 多币种金额，只使用店铺币种
type MoneyBag struct {
	ShopMoney *Money `json:"shopMoney"`
}

// Money 金额
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// GraphQLCustomer GraphQL 顾客
type GraphQLCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// GraphQLAddress GraphQL 地址
type GraphQLAddress struct {
	Name string `json:"name"`
}

// GraphQLLineItem GraphQL 订单行
type GraphQLLineItem struct {
	ID                   ID              `json:"id"`
	Title                string          `json:"title"`
	Quantity             int             `json:"quantity"`
	SKU                  *string         `json:"sku"`
	OriginalUnitPriceSet *MoneyBag       `json:"originalUnitPriceSet"`
	OriginalTotalSet     *MoneyBag       `json:"originalTotalSet"`
	Variant              *GraphQLVariant `json:"variant"`
}

// GraphQLVariant 变体
type GraphQLVariant struct {
	ID    ID `json:"id"`
	Image *struct {
		URL string `json:"url"`
	} `json:"image"`
	Product *struct {
		ID ID `json:"id"`
	} `json:"product"`
}

// LineItemNodes 展开 edges
func (o *GraphQLOrder) LineItemNodes() []GraphQLLineItem {
	nodes := make([]GraphQLLineItem, 0, len(o.LineItems.Edges))
	for _, e := range o.LineItems.Edges {
		nodes = append(nodes, e.Node)
	}
	return nodes
}
