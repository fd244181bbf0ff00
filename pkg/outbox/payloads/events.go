package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order and its items are committed.
type OrderCreatedEvent struct {
	OrderID             uuid.UUID       `json:"order_id"`
	OrderNumber         string          `json:"order_number"`
	UserID              uuid.UUID       `json:"user_id"`
	StoreID             uuid.UUID       `json:"store_id"`
	ItemsTotal          decimal.Decimal `json:"items_total"`
	CouponDiscount      decimal.Decimal `json:"coupon_discount"`
	OfferDiscount       decimal.Decimal `json:"offer_discount"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	ProductListingCount int             `json:"product_listing_count"`
	TotalUnits          int             `json:"total_units"`
}

// PaymentCreatedEvent records a new pending payment and its gateway correlation id.
type PaymentCreatedEvent struct {
	PaymentID     uuid.UUID             `json:"payment_id"`
	OrderID       uuid.UUID             `json:"order_id"`
	StoreID       uuid.UUID             `json:"store_id"`
	TransactionID string                `json:"transaction_id"`
	Gateway       *enums.PaymentGateway `json:"payment_gateway,omitempty"`
	Method        enums.PaymentMethod   `json:"payment_method"`
	Platform      enums.PaymentPlatform `json:"platform"`
	Amount        decimal.Decimal       `json:"amount"`
}

// PaymentStatusChangedEvent is emitted by the single payment write path.
type PaymentStatusChangedEvent struct {
	PaymentID      uuid.UUID             `json:"payment_id"`
	OrderID        uuid.UUID             `json:"order_id"`
	StoreID        uuid.UUID             `json:"store_id"`
	UserID         uuid.UUID             `json:"user_id"`
	TransactionID  string                `json:"transaction_id"`
	Gateway        *enums.PaymentGateway `json:"payment_gateway,omitempty"`
	PreviousStatus enums.PaymentStatus   `json:"previous_status"`
	Status         enums.PaymentStatus   `json:"status"`
	Amount         decimal.Decimal       `json:"amount"`
	Source         string                `json:"source"`
	ObservedAt     time.Time             `json:"observed_at"`
}

// PackageCreatedEvent asks the shipping worker to register the package with the provider.
type PackageCreatedEvent struct {
	PackageID  uuid.UUID `json:"package_id"`
	OrderID    uuid.UUID `json:"order_id"`
	StoreID    uuid.UUID `json:"store_id"`
	TotalUnits int       `json:"total_units"`
}

type PackageStatusChangedEvent struct {
	PackageID      uuid.UUID           `json:"package_id"`
	OrderID        uuid.UUID           `json:"order_id"`
	StoreID        uuid.UUID           `json:"store_id"`
	PreviousStatus enums.PackageStatus `json:"previous_status"`
	Status         enums.PackageStatus `json:"status"`
	TrackingNumber *string             `json:"tracking_number,omitempty"`
	ChangedAt      time.Time           `json:"changed_at"`
}

// NotificationRequestedEvent is a (template, variables, recipient) triple for the dispatcher.
type NotificationRequestedEvent struct {
	TemplateName string     `json:"template_name"`
	Variables    []string   `json:"variables"`
	Recipient    string     `json:"recipient"`
	OrderID      *uuid.UUID `json:"order_id,omitempty"`
}
