package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// Coupon is a code-redeemed discount. UsageLimit nil means unlimited.
type Coupon struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID           *uuid.UUID          `gorm:"column:store_id;type:uuid"`
	Code              string              `gorm:"column:code;not null;uniqueIndex"`
	DiscountType      enums.DiscountType  `gorm:"column:discount_type;type:discount_type;not null"`
	CouponType        enums.CouponType    `gorm:"column:coupon_type;type:coupon_type;not null"`
	DiscountValue     decimal.Decimal     `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinCartValue      decimal.Decimal     `gorm:"column:min_cart_value;type:numeric(12,2);not null;default:0"`
	MaxDiscountAmount decimal.NullDecimal `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	ValidFrom         time.Time           `gorm:"column:valid_from;not null"`
	ValidUntil        time.Time           `gorm:"column:valid_until;not null"`
	IsActive          bool                `gorm:"column:is_active;not null;default:true"`
	UsageLimit        *int                `gorm:"column:usage_limit"`
	UsedCount         int                 `gorm:"column:used_count;not null;default:0"`
	PerUserLimit      int                 `gorm:"column:per_user_limit;not null;default:0"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponUsage counts redemptions of one coupon by one user.
type CouponUsage struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID   uuid.UUID `gorm:"column:coupon_id;type:uuid;not null"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	UsedCount  int       `gorm:"column:used_count;not null;default:0"`
	LastUsedAt time.Time `gorm:"column:last_used_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
