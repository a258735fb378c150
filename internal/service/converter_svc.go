package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/pkg/shopify"
)

// ==================== 原始订单 ====================

// RawKind 原始订单来源
type RawKind string

const (
	RawKindREST    RawKind = "rest"
	RawKindGraphQL RawKind = "graphql"
)

// RawOrder 上游返回的一条原始订单，Kind 决定哪个字段有效
type RawOrder struct {
	Kind    RawKind
	REST    *shopify.RestOrder
	GraphQL *shopify.GraphQLOrder
}

func FromREST(o shopify.RestOrder) RawOrder {
	return RawOrder{Kind: RawKindREST, REST: &o}
}

func FromGraphQL(o shopify.GraphQLOrder) RawOrder {
	return RawOrder{Kind: RawKindGraphQL, GraphQL: &o}
}

// NormalizedOrder 规范化后的订单及其订单项
type NormalizedOrder struct {
	Order model.Order
	Items []model.OrderItem
}

// ==================== 规范化 ====================

// NormalizeOrder 把 REST 或 GraphQL 订单转换成入库结构
// 纯函数，不做 I/O；字段缺失或金额格式错误返回 apperr.KindNormalization
func NormalizeOrder(shop string, raw RawOrder) (*NormalizedOrder, error) {
	switch raw.Kind {
	case RawKindREST:
		if raw.REST == nil {
			return nil, apperr.Normalization("REST 订单为空", nil)
		}
		return normalizeREST(shop, raw.REST)
	case RawKindGraphQL:
		if raw.GraphQL == nil {
			return nil, apperr.Normalization("GraphQL 订单为空", nil)
		}
		return normalizeGraphQL(shop, raw.GraphQL)
	default:
		return nil, apperr.Normalization(fmt.Sprintf("未知的订单格式: %q", raw.Kind), nil)
	}
}

func normalizeREST(shop string, o *shopify.RestOrder) (*NormalizedOrder, error) {
	orderID := LastSegment(string(o.ID))
	if orderID == "" {
		return nil, apperr.Normalization("订单缺少 id", nil)
	}

	total, err := parseMoney(o.TotalPrice)
	if err != nil {
		return nil, apperr.Normalization(fmt.Sprintf("订单 %s 金额格式错误", orderID), err)
	}
	createdAt, err := parseTime(o.CreatedAt)
	if err != nil {
		return nil, apperr.Normalization(fmt.Sprintf("订单 %s 创建时间格式错误", orderID), err)
	}

	var firstName, lastName, customerEmail, billingName string
	if o.Customer != nil {
		firstName, lastName, customerEmail = o.Customer.FirstName, o.Customer.LastName, o.Customer.Email
	}
	if o.BillingAddress != nil {
		billingName = o.BillingAddress.Name
	}

	out := &NormalizedOrder{
		Order: model.Order{
			Shop:          shop,
			OrderID:       orderID,
			Status:        normalizeStatus(o.FinancialStatus),
			TotalPrice:    total,
			Currency:      strings.ToUpper(strings.TrimSpace(o.Currency)),
			CustomerEmail: firstNonEmpty(customerEmail, o.Email),
			CustomerName:  customerName(firstName, lastName, billingName),
			CreatedAt:     createdAt,
		},
		Items: make([]model.OrderItem, 0, len(o.LineItems)),
	}

	for _, li := range o.LineItems {
		lineID := LastSegment(string(li.ID))
		if lineID == "" {
			return nil, apperr.Normalization(fmt.Sprintf("订单 %s 存在缺少 id 的订单项", orderID), nil)
		}
		if li.Quantity < 0 {
			return nil, apperr.Normalization(fmt.Sprintf("订单项 %s 数量为负数", lineID), nil)
		}
		price, err := parseMoney(li.Price)
		if err != nil {
			return nil, apperr.Normalization(fmt.Sprintf("订单项 %s 金额格式错误", lineID), err)
		}

		out.Items = append(out.Items, model.OrderItem{
			Shop:       shop,
			OrderID:    orderID,
			LineItemID: lineID,
			ProductID:  LastSegment(string(li.ProductID)),
			VariantID:  LastSegment(string(li.VariantID)),
			Title:      li.Title,
			SKU:        li.SKU,
			Quantity:   li.Quantity,
			Price:      price,
		})
	}
	return out, nil
}

func normalizeGraphQL(shop string, o *shopify.GraphQLOrder) (*NormalizedOrder, error) {
	orderID := LastSegment(string(o.ID))
	if orderID == "" {
		return nil, apperr.Normalization("订单缺少 id", nil)
	}

	var amount, currency string
	if o.TotalPriceSet != nil && o.TotalPriceSet.ShopMoney != nil {
		amount, currency = o.TotalPriceSet.ShopMoney.Amount, o.TotalPriceSet.ShopMoney.CurrencyCode
	}
	total, err := parseMoney(amount)
	if err != nil {
		return nil, apperr.Normalization(fmt.Sprintf("订单 %s 金额格式错误", orderID), err)
	}
	createdAt, err := parseTime(o.CreatedAt)
	if err != nil {
		return nil, apperr.Normalization(fmt.Sprintf("订单 %s 创建时间格式错误", orderID), err)
	}

	var firstName, lastName, customerEmail, billingName string
	if o.Customer != nil {
		firstName, lastName, customerEmail = o.Customer.FirstName, o.Customer.LastName, o.Customer.Email
	}
	if o.BillingAddress != nil {
		billingName = o.BillingAddress.Name
	}

	nodes := o.LineItemNodes()
	out := &NormalizedOrder{
		Order: model.Order{
			Shop:          shop,
			OrderID:       orderID,
			Status:        normalizeStatus(o.DisplayFinancialStatus),
			TotalPrice:    total,
			Currency:      strings.ToUpper(strings.TrimSpace(currency)),
			CustomerEmail: firstNonEmpty(customerEmail, o.Email),
			CustomerName:  customerName(firstName, lastName, billingName),
			CreatedAt:     createdAt,
		},
		Items: make([]model.OrderItem, 0, len(nodes)),
	}

	for _, li := range nodes {
		lineID := LastSegment(string(li.ID))
		if lineID == "" {
			return nil, apperr.Normalization(fmt.Sprintf("订单 %s 存在缺少 id 的订单项", orderID), nil)
		}
		if li.Quantity < 0 {
			return nil, apperr.Normalization(fmt.Sprintf("订单项 %s 数量为负数", lineID), nil)
		}
		price, err := graphQLUnitPrice(li)
		if err != nil {
			return nil, apperr.Normalization(fmt.Sprintf("订单项 %s 金额格式错误", lineID), err)
		}

		item := model.OrderItem{
			Shop:       shop,
			OrderID:    orderID,
			LineItemID: lineID,
			Title:      li.Title,
			Quantity:   li.Quantity,
			Price:      price,
		}
		if li.SKU != nil {
			item.SKU = *li.SKU
		}
		if v := li.Variant; v != nil {
			item.VariantID = LastSegment(string(v.ID))
			if v.Product != nil {
				item.ProductID = LastSegment(string(v.Product.ID))
			}
			if v.Image != nil && v.Image.URL != "" {
				url := v.Image.URL
				item.ImageURL = &url
			}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// graphQLUnitPrice 优先取单价，缺失时用原始小计除以数量
func graphQLUnitPrice(li shopify.GraphQLLineItem) (decimal.Decimal, error) {
	if li.OriginalUnitPriceSet != nil && li.OriginalUnitPriceSet.ShopMoney != nil {
		return parseMoney(li.OriginalUnitPriceSet.ShopMoney.Amount)
	}
	if li.OriginalTotalSet != nil && li.OriginalTotalSet.ShopMoney != nil && li.Quantity > 0 {
		total, err := parseMoney(li.OriginalTotalSet.ShopMoney.Amount)
		if err != nil {
			return decimal.Zero, err
		}
		return total.Div(decimal.NewFromInt(int64(li.Quantity))).Round(2), nil
	}
	return decimal.Zero, nil
}

// ==================== 辅助函数 ====================

// LastSegment 取最后一个 "/" 之后的部分，gid://shopify/Order/5001 -> 5001
func LastSegment(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// customerName 顾客姓名 > 账单地址姓名 > Guest
func customerName(firstName, lastName, billingName string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{firstName, lastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if name := strings.TrimSpace(billingName); name != "" {
		return name
	}
	return model.GuestCustomerName
}

// normalizeStatus GraphQL 枚举 PARTIALLY_REFUNDED 与 REST 的 partially_refunded 对齐
func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseMoney 空值视为 0，统一保留两位小数
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero.Round(2), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(2), nil
}

// parseTime 统一转为 UTC，空值返回零值
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
