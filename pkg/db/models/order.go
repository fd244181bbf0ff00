package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// Order is a placed checkout. PaymentStatus mirrors the latest Payment.status and
// is written only by the payments service.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	StoreID             uuid.UUID           `gorm:"column:store_id;type:uuid;not null"`
	ItemsTotal          decimal.Decimal     `gorm:"column:items_total;type:numeric(12,2);not null"`
	CouponID            *uuid.UUID          `gorm:"column:coupon_id;type:uuid"`
	CouponDiscount      decimal.Decimal     `gorm:"column:coupon_discount;type:numeric(12,2);not null;default:0"`
	OfferID             *uuid.UUID          `gorm:"column:offer_id;type:uuid"`
	OfferDiscount       decimal.Decimal     `gorm:"column:offer_discount;type:numeric(12,2);not null;default:0"`
	TotalAmount         decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	ProductListingCount int                 `gorm:"column:product_listing_count;not null;default:0"`
	TotalUnits          int                 `gorm:"column:total_units;not null;default:0"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
