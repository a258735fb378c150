package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"shopify_order_sync/pkg/net"
)

// AccessTokenHeader Admin API 鉴权头
const AccessTokenHeader = "X-Shopify-Access-Token"

// Credential 店铺凭证，只在一次调用中使用，不落库
type Credential struct {
	Shop        string // xxx.myshopify.com
	AccessToken string
}

// Config 客户端配置
type Config struct {
	APIVersion string
	Scheme     string // 默认 https
	HTTP       net.ClientOptions
	Guard      net.GuardConfig
}

// ==================== 错误 ====================

// FetchError 上游请求失败（非 2xx、GraphQL errors、网络错误、响应无法解析）
type FetchError struct {
	StatusCode int    // 网络错误时为 0
	Code       string // GraphQL extensions.code 或 CIRCUIT_OPEN
	Message    string
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("shopify 请求失败 [%d %s] %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("shopify 请求失败 [%d] %s", e.StatusCode, msg)
}

func (e *FetchError) Unwrap() error { return e.Err }

// isOutage 只有网络错误、5xx 与 429 计入熔断统计，4xx 属于调用方问题
func isOutage(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return true
	}
	return fe.StatusCode == 0 || fe.StatusCode >= http.StatusInternalServerError || fe.StatusCode == http.StatusTooManyRequests
}

func newHTTPError(url string, resp *resty.Response) *FetchError {
	fe := &FetchError{
		StatusCode: resp.StatusCode(),
		URL:        url,
		Message:    http.StatusText(resp.StatusCode()),
	}
	// Shopify 的 errors 字段可能是字符串、数组或对象
	var body struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && len(body.Errors) > 0 {
		var s string
		if json.Unmarshal(body.Errors, &s) == nil {
			fe.Message = s
		} else {
			fe.Message = string(body.Errors)
		}
	}
	return fe
}

func graphQLError(url string, status int, errs []GraphQLError) *FetchError {
	first := errs[0]
	return &FetchError{
		StatusCode: status,
		Code:       first.Extensions.Code,
		Message:    first.Message,
		URL:        url,
	}
}

// ==================== 客户端 ====================

// Client Shopify Admin API 客户端
// 同一店铺的请求经由 Dispatcher 限流与熔断，不自动重试
type Client struct {
	http       *resty.Client
	dispatcher net.Dispatcher
	apiVersion string
	scheme     string
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	guard := cfg.Guard
	if guard.IsFailure == nil {
		guard.IsFailure = isOutage
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &Client{
		http:       net.NewClient(cfg.HTTP),
		dispatcher: net.NewDispatcher(guard),
		apiVersion: cfg.APIVersion,
		scheme:     scheme,
	}
}

// AdminURL 形如 https://{shop}/admin/api/{version}
func (c *Client) AdminURL(shop string) string {
	return fmt.Sprintf("%s://%s/admin/api/%s", c.scheme, shop, c.apiVersion)
}

// OrdersURL REST 订单列表首页地址
func (c *Client) OrdersURL(shop string) string {
	return fmt.Sprintf("%s/orders.json?limit=%d&status=any", c.AdminURL(shop), PageSize)
}

// GraphQLURL GraphQL 端点
func (c *Client) GraphQLURL(shop string) string {
	return c.AdminURL(shop) + "/graphql.json"
}

// ListOrdersPage 拉取一页 REST 订单，NextURL 取自 Link 头
func (c *Client) ListOrdersPage(ctx context.Context, cred Credential, pageURL string) (*RestOrdersPage, error) {
	var page *RestOrdersPage
	err := c.dispatcher.Do(ctx, cred.Shop, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader(AccessTokenHeader, cred.AccessToken).
			Get(pageURL)
		if err != nil {
			return &FetchError{URL: pageURL, Message: "网络请求失败", Err: err}
		}
		if !resp.IsSuccess() {
			return newHTTPError(pageURL, resp)
		}

		var body RestOrdersResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return &FetchError{StatusCode: resp.StatusCode(), URL: pageURL, Message: "响应解析失败", Err: err}
		}
		page = &RestOrdersPage{
			Orders:  body.Orders,
			NextURL: NextPageURL(resp.Header().Get("Link")),
		}
		return nil
	})
	if err != nil {
		return nil, asFetchError(pageURL, err)
	}
	return page, nil
}

// QueryOrdersPage 拉取一页 GraphQL 订单，after 为空表示第一页
func (c *Client) QueryOrdersPage(ctx context.Context, cred Credential, filter, after string) (*GraphQLOrdersPage, error) {
	vars := map[string]interface{}{"first": PageSize}
	if filter != "" {
		vars["query"] = filter
	}
	if after != "" {
		vars["after"] = after
	}

	var body GraphQLOrdersResponse
	if err := c.postGraphQL(ctx, cred, GraphQLRequest{Query: OrdersQuery, Variables: vars}, &body); err != nil {
		return nil, err
	}

	page := &GraphQLOrdersPage{
		Orders:   make([]GraphQLOrder, 0, len(body.Data.Orders.Edges)),
		PageInfo: body.Data.Orders.PageInfo,
	}
	for _, e := range body.Data.Orders.Edges {
		order := e.Node
		if err := c.fetchRemainingLineItems(ctx, cred, &order); err != nil {
			return nil, err
		}
		page.Orders = append(page.Orders, order)
	}
	return page, nil
}

// GetOrder 按订单号拉取单个 GraphQL 订单，不存在时返回 nil, nil
func (c *Client) GetOrder(ctx context.Context, cred Credential, orderID string) (*GraphQLOrder, error) {
	req := GraphQLRequest{
		Query:     OrderQuery,
		Variables: map[string]interface{}{"id": OrderGID(orderID)},
	}
	var body GraphQLOrderResponse
	if err := c.postGraphQL(ctx, cred, req, &body); err != nil {
		return nil, err
	}
	if body.Data.Order == nil {
		return nil, nil
	}
	if err := c.fetchRemainingLineItems(ctx, cred, body.Data.Order); err != nil {
		return nil, err
	}
	return body.Data.Order, nil
}

// fetchRemainingLineItems 订单行超过内嵌首页时按游标补齐
func (c *Client) fetchRemainingLineItems(ctx context.Context, cred Credential, order *GraphQLOrder) error {
	info := order.LineItems.PageInfo
	for info.HasNextPage && info.EndCursor != "" && order.ID != "" {
		req := GraphQLRequest{
			Query: LineItemsQuery,
			Variables: map[string]interface{}{
				"id":    OrderGID(string(order.ID)),
				"first": LineItemPageSize,
				"after": info.EndCursor,
			},
		}
		var body GraphQLLineItemsResponse
		if err := c.postGraphQL(ctx, cred, req, &body); err != nil {
			return err
		}
		if body.Data.Order == nil {
			break
		}
		next := body.Data.Order.LineItems
		order.LineItems.Edges = append(order.LineItems.Edges, next.Edges...)
		// 游标未前进时停止，避免死循环
		if next.PageInfo.EndCursor == info.EndCursor {
			next.PageInfo.HasNextPage = false
		}
		info = next.PageInfo
	}
	order.LineItems.PageInfo = info
	return nil
}

// postGraphQL 发送 GraphQL 请求并解析到 out，errors 非空时视为失败
func (c *Client) postGraphQL(ctx context.Context, cred Credential, req GraphQLRequest, out interface{}) error {
	url := c.GraphQLURL(cred.Shop)
	err := c.dispatcher.Do(ctx, cred.Shop, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader(AccessTokenHeader, cred.AccessToken).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post(url)
		if err != nil {
			return &FetchError{URL: url, Message: "网络请求失败", Err: err}
		}
		if !resp.IsSuccess() {
			return newHTTPError(url, resp)
		}

		var envelope struct {
			Errors []GraphQLError `json:"errors"`
		}
		if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
			return &FetchError{StatusCode: resp.StatusCode(), URL: url, Message: "响应解析失败", Err: err}
		}
		if len(envelope.Errors) > 0 {
			return graphQLError(url, resp.StatusCode(), envelope.Errors)
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &FetchError{StatusCode: resp.StatusCode(), URL: url, Message: "响应解析失败", Err: err}
		}
		return nil
	})
	if err != nil {
		return asFetchError(url, err)
	}
	return nil
}

// asFetchError 熔断、限流等待被取消等非 HTTP 错误统一包装
func asFetchError(url string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	code := ""
	if errors.Is(err, net.ErrCircuitOpen) {
		code = "CIRCUIT_OPEN"
	}
	return &FetchError{Code: code, URL: url, Message: "请求未发出", Err: err}
}
