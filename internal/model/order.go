package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ==================== 财务状态常量 ====================

// FinancialStatus Shopify 订单财务状态（REST 取值，GraphQL 枚举转小写后与之一致）
const (
	FinancialStatusPending           = "pending"
	FinancialStatusAuthorized        = "authorized"
	FinancialStatusPartiallyPaid     = "partially_paid"
	FinancialStatusPaid              = "paid"
	FinancialStatusPartiallyRefunded = "partially_refunded"
	FinancialStatusRefunded          = "refunded"
	FinancialStatusVoided            = "voided"
)

// GuestCustomerName 无顾客信息时的展示名
const GuestCustomerName = "Guest"

// ==================== Order 订单主表 ====================

// Order 订单
// 唯一键为 (shop, order_id)，同一个外部订单号在不同店铺下互不影响
type Order struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Shop    string `gorm:"size:255;not null;index:idx_orders_shop;uniqueIndex:idx_orders_shop_order,priority:1" json:"shop"`
	OrderID string `gorm:"size:255;not null;uniqueIndex:idx_orders_shop_order,priority:2" json:"order_id"`

	// 冲突时仅更新 Status / TotalPrice / UpdatedAt，其余字段保持首次写入的值
	Status     string          `gorm:"size:50" json:"status"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(10,2)" json:"total_price"`
	Currency   string          `gorm:"size:3" json:"currency"`

	// 顾客
	CustomerEmail string `gorm:"size:255" json:"customer_email"`
	CustomerName  string `gorm:"size:255" json:"customer_name"`

	CreatedAt time.Time `gorm:"index:idx_orders_created_at" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 外键 order_items(shop, order_id) -> orders，删除订单时级联；写入时由仓库单独处理
	Items []OrderItem `gorm:"foreignKey:Shop,OrderID;references:Shop,OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

func (*Order) TableName() string {
	return "orders"
}

// ==================== OrderItem 订单项 ====================

// OrderItem 订单项，随父订单级联删除
type OrderItem struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Shop       string `gorm:"size:255;not null;uniqueIndex:idx_order_items_line,priority:1" json:"shop"`
	OrderID    string `gorm:"size:255;not null;index:idx_order_items_order_id;uniqueIndex:idx_order_items_line,priority:2" json:"order_id"`
	LineItemID string `gorm:"size:255;not null;uniqueIndex:idx_order_items_line,priority:3" json:"line_item_id"`

	// 商品
	ProductID string  `gorm:"size:255" json:"product_id"`
	VariantID string  `gorm:"size:255" json:"variant_id"`
	Title     string  `gorm:"size:255" json:"title"`
	SKU       string  `gorm:"size:255;not null;default:''" json:"sku"`
	ImageURL  *string `gorm:"type:text" json:"image_url"`

	// 数量与价格
	Quantity int             `gorm:"not null;default:0;check:chk_order_items_quantity,quantity >= 0" json:"quantity"`
	Price    decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*OrderItem) TableName() string {
	return "order_items"
}

// LineTotal 行小计
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
