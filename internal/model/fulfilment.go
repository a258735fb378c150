package model

import "time"

// FulfilmentItem 退货/履约明细（同步流程不读写此表，仅建表）
type FulfilmentItem struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReturnID   string    `gorm:"size:255;index:idx_fulfilment_items_return_id" json:"return_id"`
	LineItemID string    `gorm:"size:255" json:"line_item_id"`
	Quantity   int       `json:"quantity"`
	Reason     string    `gorm:"type:text" json:"reason"`
	ImageURL   string    `gorm:"type:text" json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
}

func (*FulfilmentItem) TableName() string {
	return "fulfilment_items"
}

// Image 退货凭证图片，随 FulfilmentItem 级联删除
type Image struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageURL     string `gorm:"type:text;not null" json:"image_url"`
	ReturnItemID *int64 `json:"return_item_id"`

	FulfilmentItem *FulfilmentItem `gorm:"foreignKey:ReturnItemID;constraint:OnDelete:CASCADE" json:"-"`
}

func (*Image) TableName() string {
	return "images"
}

// AllModels 需要建表的全部模型，按依赖顺序排列
func AllModels() []interface{} {
	return []interface{}{
		&Order{}, &OrderItem{},
		&FulfilmentItem{}, &Image{},
	}
}
