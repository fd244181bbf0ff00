package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// Payment is one attempt to settle an order. TransactionID is assigned once at
// creation and is the only key used to correlate gateway callbacks.
type Payment struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	StoreID          uuid.UUID             `gorm:"column:store_id;type:uuid;not null"`
	PaymentMethod    enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method;not null"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Status           enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	TransactionID    string                `gorm:"column:transaction_id;not null;uniqueIndex"`
	PaymentGateway   *enums.PaymentGateway `gorm:"column:payment_gateway;type:payment_gateway"`
	PaymentURL       *string               `gorm:"column:payment_url"`
	Platform         enums.PaymentPlatform `gorm:"column:platform;type:payment_platform;not null;default:'web'"`
	DeviceInfo       json.RawMessage       `gorm:"column:device_info;type:jsonb"`
	GatewayStatus    *string               `gorm:"column:gateway_status"`
	StatusObservedAt time.Time             `gorm:"column:status_observed_at;not null"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
