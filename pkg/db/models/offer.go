package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// Offer is an automatically evaluated discount over a configured product set.
type Offer struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID            *uuid.UUID       `gorm:"column:store_id;type:uuid"`
	Name               string           `gorm:"column:name;not null"`
	OfferType          enums.OfferType  `gorm:"column:offer_type;type:offer_type;not null"`
	OfferScope         enums.OfferScope `gorm:"column:offer_scope;type:offer_scope;not null"`
	BuyQuantity        int              `gorm:"column:buy_quantity;not null;default:0"`
	GetQuantity        int              `gorm:"column:get_quantity;not null;default:0"`
	GetDiscountPercent decimal.Decimal  `gorm:"column:get_discount_percent;type:numeric(5,2);not null;default:0"`
	ValidFrom          time.Time        `gorm:"column:valid_from;not null"`
	ValidUntil         time.Time        `gorm:"column:valid_until;not null"`
	IsActive           bool             `gorm:"column:is_active;not null;default:true"`
	Products           []ProductOffer   `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductOffer binds a product to an offer. (offer_id, product_id) is unique.
type ProductOffer struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OfferID               uuid.UUID       `gorm:"column:offer_id;type:uuid;not null"`
	ProductID             uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	IsPrimary             bool            `gorm:"column:is_primary;not null;default:false"`
	BundleQuantity        int             `gorm:"column:bundle_quantity;not null;default:1"`
	BundleDiscountPercent decimal.Decimal `gorm:"column:bundle_discount_percent;type:numeric(5,2);not null;default:0"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
}
