package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// DeliveryPackage groups order items shipped together.
type DeliveryPackage struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	TrackingNumber      *string             `gorm:"column:tracking_number;uniqueIndex"`
	ProviderOrderID     *string             `gorm:"column:provider_order_id"`
	Status              enums.PackageStatus `gorm:"column:status;type:package_status;not null;default:'pending'"`
	ProductListingCount int                 `gorm:"column:product_listing_count;not null;default:0"`
	TotalUnits          int                 `gorm:"column:total_units;not null;default:0"`
	DeliveryOutDate     *time.Time          `gorm:"column:delivery_out_date"`
	DeliveredDate       *time.Time          `gorm:"column:delivered_date"`
	Items               []PackageItem       `gorm:"foreignKey:PackageID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PackageItem places one order item in a package. order_item_id is unique.
type PackageItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PackageID   uuid.UUID `gorm:"column:package_id;type:uuid;not null"`
	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex"`
	Quantity    int       `gorm:"column:quantity;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
