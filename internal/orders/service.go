package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/internal/discounts"
	"github.com/angelmondragon/estore-backend/pkg/db"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/money"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/estore-backend/pkg/pagination"
)

// Service defines the order aggregate operations.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*models.Order, error)
	UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, input UpdateItemInput) (*models.Order, error)
	RecomputeCounters(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
}

// ItemInput is one requested line of a new order.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// PlaceOrderInput carries a checkout. CouponProductID selects the product a
// product-scoped coupon applies to; single-item orders default to that item.
type PlaceOrderInput struct {
	StoreID         uuid.UUID
	Items           []ItemInput
	CouponCode      *string
	CouponProductID *uuid.UUID
	OfferID         *uuid.UUID
}

// UpdateItemInput changes the quantity and/or price of an existing line.
type UpdateItemInput struct {
	Quantity *int
	Price    *decimal.Decimal
}

// ListResult is one page of orders. NextCursor is empty on the last page.
type ListResult struct {
	Orders     []models.Order
	NextCursor string
}

// ServiceParams groups the order service dependencies.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Discounts discountEngine
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	discounts discountEngine
	logg      *logger.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discount engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		discounts: params.Discounts,
		logg:      params.Logger,
		now:       time.Now,
		newID:     uuid.New,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	lines, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}

	order, err := s.priceItems(ctx, userID, input.StoreID, lines)
	if err != nil {
		return nil, err
	}
	if err := s.applyOffer(ctx, order, input.OfferID); err != nil {
		return nil, err
	}
	if err := s.applyCoupon(ctx, order, input); err != nil {
		return nil, err
	}
	order.TotalAmount = money.Round(money.ClampNonNegative(
		order.ItemsTotal.Sub(order.CouponDiscount).Sub(order.OfferDiscount),
	))

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if order.CouponID != nil {
			if err := s.discounts.RedeemCoupon(ctx, tx, *order.CouponID, &userID); err != nil {
				return err
			}
		}
		items := order.Items
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
		}
		if err := s.RecomputeCounters(ctx, tx, order.ID); err != nil {
			return err
		}
		stored, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		*order = *stored

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: userID, StoreID: &order.StoreID},
			Data: payloads.OrderCreatedEvent{
				OrderID:             order.ID,
				OrderNumber:         order.OrderNumber,
				UserID:              order.UserID,
				StoreID:             order.StoreID,
				ItemsTotal:          order.ItemsTotal,
				CouponDiscount:      order.CouponDiscount,
				OfferDiscount:       order.OfferDiscount,
				TotalAmount:         order.TotalAmount,
				ProductListingCount: order.ProductListingCount,
				TotalUnits:          order.TotalUnits,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_number": order.OrderNumber,
		"total_amount": money.String(order.TotalAmount),
	})
	s.logg.Info(logCtx, "order placed")
	return order, nil
}

// mergeItems folds repeated product ids into one line, keeping first-seen order.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	index := make(map[uuid.UUID]int, len(items))
	merged := make([]ItemInput, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every item needs a product id and a positive quantity")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// priceItems snapshots listing prices into new order items.
func (s *service) priceItems(ctx context.Context, userID, storeID uuid.UUID, lines []ItemInput) (*models.Order, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:             s.newID(),
		OrderNumber:    s.orderNumber(now),
		UserID:         userID,
		StoreID:        storeID,
		PaymentStatus:  enums.PaymentStatusPending,
		CouponDiscount: decimal.Zero,
		OfferDiscount:  decimal.Zero,
	}
	itemsTotal := decimal.Zero
	for _, l := range lines {
		product, ok := byID[l.ProductID]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", l.ProductID)
		}
		if product.StoreID != storeID {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product %s does not belong to store", l.ProductID)
		}
		if !product.IsActive {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product %s is not available", l.ProductID)
		}
		item := models.OrderItem{
			ID:        s.newID(),
			OrderID:   order.ID,
			ProductID: product.ID,
			Quantity:  l.Quantity,
			Price:     product.Price,
			Status:    enums.OrderItemStatusPending,
		}
		item.Recalculate()
		itemsTotal = itemsTotal.Add(item.Subtotal)
		order.Items = append(order.Items, item)
	}
	order.ItemsTotal = money.Round(itemsTotal)
	order.TotalAmount = order.ItemsTotal
	return order, nil
}

func (s *service) applyOffer(ctx context.Context, order *models.Order, offerID *uuid.UUID) error {
	if offerID == nil || *offerID == uuid.Nil {
		return nil
	}
	input := discounts.OfferInput{OfferID: *offerID}
	for _, item := range order.Items {
		input.ProductIDs = append(input.ProductIDs, item.ProductID)
		input.Quantities = append(input.Quantities, item.Quantity)
	}
	result, err := s.discounts.EvaluateOffer(ctx, input)
	if err != nil {
		return err
	}
	if !result.Valid {
		return pkgerrors.New(pkgerrors.CodeValidation, result.Message)
	}
	id := *offerID
	order.OfferID = &id
	order.OfferDiscount = result.DiscountAmount
	return nil
}

// applyCoupon evaluates the coupon against the sum of item subtotals.
func (s *service) applyCoupon(ctx context.Context, order *models.Order, input PlaceOrderInput) error {
	if input.CouponCode == nil || strings.TrimSpace(*input.CouponCode) == "" {
		return nil
	}
	productID := input.CouponProductID
	if productID == nil && len(order.Items) == 1 {
		productID = &order.Items[0].ProductID
	}
	if productID != nil && !containsProduct(order.Items, *productID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon product is not part of the order")
	}
	userID := order.UserID
	result, err := s.discounts.EvaluateCoupon(ctx, discounts.CouponInput{
		Code:      *input.CouponCode,
		CartValue: order.ItemsTotal,
		ProductID: productID,
		UserID:    &userID,
	})
	if err != nil {
		return err
	}
	if !result.Valid {
		return pkgerrors.New(pkgerrors.CodeValidation, result.Message)
	}
	couponID := result.CouponID
	order.CouponID = &couponID
	order.CouponDiscount = result.DiscountAmount
	return nil
}

func containsProduct(items []models.OrderItem, productID uuid.UUID) bool {
	for _, item := range items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// orderNumber renders ORD-YYYYMMDD-XXXXXXXX from the date and a random suffix.
func (s *service) orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(s.newID().String(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

func (s *service) UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, input UpdateItemInput) (*models.Order, error) {
	if orderID == uuid.Nil || itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and item id are required")
	}
	if input.Quantity == nil && input.Price == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity or price is required")
	}
	if input.Quantity != nil && *input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.Price != nil && !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err, "order not found")
		}
		if order.PaymentStatus != enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order items cannot change after payment settled")
		}
		item, err := repo.FindItem(ctx, itemID)
		if err != nil {
			return notFound(err, "order item not found")
		}
		if item.OrderID != order.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		if input.Quantity != nil {
			packaged, err := repo.PackagedQuantity(ctx, item.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load packaged quantity")
			}
			if *input.Quantity < packaged {
				return pkgerrors.Newf(pkgerrors.CodeIntegrity, "quantity cannot drop below the %d units already packaged", packaged)
			}
			item.Quantity = *input.Quantity
		}
		if input.Price != nil {
			item.Price = money.Round(*input.Price)
		}
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save order item")
		}
		if err := s.recomputeTotals(ctx, repo, order); err != nil {
			return err
		}
		if err := s.RecomputeCounters(ctx, tx, order.ID); err != nil {
			return err
		}
		updated, err = repo.FindOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithField(logCtx, "order_item_id", itemID.String())
	s.logg.Info(logCtx, "order item updated")
	return updated, nil
}

// recomputeTotals re-derives items_total and total_amount from the stored
// subtotals. Recorded discounts are kept as applied at checkout.
func (s *service) recomputeTotals(ctx context.Context, repo Repository, order *models.Order) error {
	stored, err := repo.FindOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order items")
	}
	itemsTotal := decimal.Zero
	for _, item := range stored.Items {
		itemsTotal = itemsTotal.Add(item.Subtotal)
	}
	itemsTotal = money.Round(itemsTotal)
	total := money.Round(money.ClampNonNegative(itemsTotal.Sub(order.CouponDiscount).Sub(order.OfferDiscount)))
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"items_total":  itemsTotal,
		"total_amount": total,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order totals")
	}
	return nil
}

// RecomputeCounters rewrites product_listing_count and total_units from the
// order's items. It emits nothing.
func (s *service) RecomputeCounters(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	agg, err := repo.ItemAggregates(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate order items")
	}
	if err := repo.UpdateOrder(ctx, orderID, map[string]any{
		"product_listing_count": agg.Listings,
		"total_units":           agg.Units,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order counters")
	}
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	page, next := pagination.Trim(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &ListResult{Orders: page, NextCursor: next}, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
