package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/money"
)

// OrderItem is one purchased listing. Price is the snapshot at purchase time and
// Subtotal is always Quantity x Price.
type OrderItem struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	ProductID       uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	Quantity        int                   `gorm:"column:quantity;not null"`
	Price           decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Status          enums.OrderItemStatus `gorm:"column:status;type:order_item_status;not null;default:'pending'"`
	CancelRequested bool                  `gorm:"column:cancel_requested;not null;default:false"`
	CancelApproved  bool                  `gorm:"column:cancel_approved;not null;default:false"`
	ReturnRequested bool                  `gorm:"column:return_requested;not null;default:false"`
	ReturnApproved  bool                  `gorm:"column:return_approved;not null;default:false"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Recalculate re-derives Subtotal from Quantity and Price.
func (i *OrderItem) Recalculate() {
	i.Subtotal = money.Round(i.Price.Mul(decimal.NewFromInt(int64(i.Quantity))))
}
