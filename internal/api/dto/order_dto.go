package dto

import (
	"time"

	"shopify_order_sync/internal/model"
)

// ==================== 订单列表查询 ====================

// ListOrdersRequest 订单列表请求
type ListOrdersRequest struct {
	Limit  int  `form:"limit,default=50" binding:"min=1,max=250"`
	Offset int  `form:"offset,default=0" binding:"min=0"`
	Sync   bool `form:"sync"` // true 时先从 Shopify 同步
}

// Pagination 分页信息
type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// ListOrdersResponse 订单列表响应
type ListOrdersResponse struct {
	Success    bool          `json:"success"`
	Data       []model.Order `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// RecentOrdersResponse 近期订单响应
type RecentOrdersResponse struct {
	Success bool          `json:"success"`
	Data    []model.Order `json:"data"`
	Count   int           `json:"count"`
}

// OrderDetailResponse 订单详情响应
type OrderDetailResponse struct {
	Success bool         `json:"success"`
	Data    *model.Order `json:"data"`
}

// ==================== 订单同步 ====================

// SyncOrdersRequest 手动同步请求
type SyncOrdersRequest struct {
	Mode string `form:"mode" binding:"omitempty,oneof=rest graphql"`
}

// SyncOrdersResponse 同步响应
type SyncOrdersResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    []model.Order `json:"data"`
	Stats   SyncStats     `json:"stats"`
}

// SyncStats 同步统计
type SyncStats struct {
	Mode      string `json:"mode"`
	Fetched   int    `json:"fetched"`
	Synced    int    `json:"synced"`
	Skipped   int    `json:"skipped"`
	Truncated bool   `json:"truncated"`
}

// ==================== 通用 ====================

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
