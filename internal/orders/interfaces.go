package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/internal/discounts"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
	"github.com/angelmondragon/estore-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	SaveItem(ctx context.Context, item *models.OrderItem) error
	ItemAggregates(ctx context.Context, orderID uuid.UUID) (*ItemAggregates, error)
	PackagedQuantity(ctx context.Context, itemID uuid.UUID) (int, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// discountEngine is the part of the discounts service checkout depends on.
type discountEngine interface {
	EvaluateCoupon(ctx context.Context, input discounts.CouponInput) (*discounts.CouponResult, error)
	EvaluateOffer(ctx context.Context, input discounts.OfferInput) (*discounts.OfferResult, error)
	RedeemCoupon(ctx context.Context, tx *gorm.DB, couponID uuid.UUID, userID *uuid.UUID) error
}
