package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shopify_order_sync/internal/apperr"
	"shopify_order_sync/internal/model"
)

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
// 所有数据库错误统一包装为 apperr.KindStore
type OrderRepository interface {
	// 写入
	UpsertOrder(ctx context.Context, order *model.Order) (*model.Order, error)
	UpsertItems(ctx context.Context, items []model.OrderItem) error
	SaveOrder(ctx context.Context, order *model.Order, items []model.OrderItem) (*model.Order, error)
	Delete(ctx context.Context, shop, orderID string) error

	// 读取，订单均按 created_at 倒序
	ListByShop(ctx context.Context, shop string, limit, offset int) ([]model.Order, error)
	GetByShopAndOrderID(ctx context.Context, shop, orderID string) (*model.Order, error)
	ListRecent(ctx context.Context, shop string, since time.Time) ([]model.Order, error)
	ListItems(ctx context.Context, shop, orderID string) ([]model.OrderItem, error)
	CountByShop(ctx context.Context, shop string) (int64, error)

	// 事务
	WithTx(tx *gorm.DB) OrderRepository
	Transaction(ctx context.Context, fn func(txRepo OrderRepository) error) error
}

// 冲突时只刷新财务字段，其余字段保留首次写入的值
var (
	orderConflictColumns = []clause.Column{{Name: "shop"}, {Name: "order_id"}}
	orderUpdateColumns   = []string{"status", "total_price", "updated_at"}

	itemConflictColumns = []clause.Column{{Name: "shop"}, {Name: "order_id"}, {Name: "line_item_id"}}
	itemUpdateColumns   = []string{"quantity", "price", "updated_at"}
)

// ==================== 实现 ====================

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) Transaction(ctx context.Context, fn func(txRepo OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// UpsertOrder 插入或更新订单，返回库中最终状态
func (r *orderRepository) UpsertOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	row := *order
	row.ID = 0
	row.Items = nil

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   orderConflictColumns,
		DoUpdates: clause.AssignmentColumns(orderUpdateColumns),
	}).Create(&row).Error
	if err != nil {
		return nil, apperr.Store("写入订单失败", err)
	}

	stored, err := r.GetByShopAndOrderID(ctx, order.Shop, order.OrderID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, apperr.Store("写入订单后读取失败", gorm.ErrRecordNotFound)
	}
	return stored, nil
}

// UpsertItems 在一个事务内批量写入订单项，任意一条失败则整批回滚
func (r *orderRepository) UpsertItems(ctx context.Context, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	// 同一语句内不能两次命中同一冲突键，重复的行项目以最后一条为准
	rows := make([]model.OrderItem, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, item := range items {
		item.ID = 0
		key := item.Shop + "\x00" + item.OrderID + "\x00" + item.LineItemID
		if i, ok := seen[key]; ok {
			rows[i] = item
			continue
		}
		seen[key] = len(rows)
		rows = append(rows, item)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   itemConflictColumns,
			DoUpdates: clause.AssignmentColumns(itemUpdateColumns),
		}).Create(&rows).Error
	})
	if err != nil {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Store("写入订单项失败", err)
	}
	return nil
}

// SaveOrder 订单与订单项在同一事务中写入
func (r *orderRepository) SaveOrder(ctx context.Context, order *model.Order, items []model.OrderItem) (*model.Order, error) {
	var stored *model.Order
	err := r.Transaction(ctx, func(txRepo OrderRepository) error {
		var err error
		if stored, err = txRepo.UpsertOrder(ctx, order); err != nil {
			return err
		}
		return txRepo.UpsertItems(ctx, items)
	})
	if err != nil {
		if apperr.Is(err, apperr.KindStore) {
			return nil, err
		}
		return nil, apperr.Store("保存订单失败", err)
	}
	return stored, nil
}

// Delete 删除订单，订单项由外键级联删除
func (r *orderRepository) Delete(ctx context.Context, shop, orderID string) error {
	err := r.db.WithContext(ctx).
		Where("shop = ? AND order_id = ?", shop, orderID).
		Delete(&model.Order{}).Error
	if err != nil {
		return apperr.Store("删除订单失败", err)
	}
	return nil
}

func (r *orderRepository) ListByShop(ctx context.Context, shop string, limit, offset int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Store("查询订单列表失败", err)
	}
	return orders, nil
}

// GetByShopAndOrderID 不存在时返回 nil, nil
func (r *orderRepository) GetByShopAndOrderID(ctx context.Context, shop, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("shop = ? AND order_id = ?", shop, orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Store("查询订单失败", err)
	}
	return &order, nil
}

func (r *orderRepository) ListRecent(ctx context.Context, shop string, since time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("shop = ? AND created_at >= ?", shop, since.UTC()).
		Order("created_at DESC").Order("id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Store("查询近期订单失败", err)
	}
	return orders, nil
}

func (r *orderRepository) ListItems(ctx context.Context, shop, orderID string) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := r.db.WithContext(ctx).
		Where("shop = ? AND order_id = ?", shop, orderID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, apperr.Store("查询订单项失败", err)
	}
	return items, nil
}

func (r *orderRepository) CountByShop(ctx context.Context, shop string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("shop = ?", shop).
		Count(&count).Error
	if err != nil {
		return 0, apperr.Store("统计订单数量失败", err)
	}
	return count, nil
}
