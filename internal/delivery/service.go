package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/db"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
)

// Notification templates for customer-visible package transitions.
const (
	TemplateOutForDelivery = "package_out_for_delivery"
	TemplateDelivered      = "package_delivered"
)

// Service manages delivery packages cut from an order's items.
type Service interface {
	CreatePackage(ctx context.Context, orderID uuid.UUID, items []ItemInput) (*models.DeliveryPackage, error)
	TransitionStatus(ctx context.Context, packageID uuid.UUID, input TransitionInput) (*models.DeliveryPackage, error)
	RecordShipment(ctx context.Context, packageID uuid.UUID, trackingNumber, providerOrderID string) error
	RecomputeCounters(ctx context.Context, tx *gorm.DB, packageID uuid.UUID) error
	Get(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error)
}

// ItemInput places Quantity units of an order item into the new package.
type ItemInput struct {
	OrderItemID uuid.UUID
	Quantity    int
}

type TransitionInput struct {
	Status         enums.PackageStatus
	TrackingNumber *string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderCounters is satisfied by the orders service.
type orderCounters interface {
	RecomputeCounters(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Orders orderCounters
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	orders orderCounters
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order counters required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		orders: params.Orders,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

func (s *service) CreatePackage(ctx context.Context, orderID uuid.UUID, items []ItemInput) (*models.DeliveryPackage, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	requested, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	pkg := &models.DeliveryPackage{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.PackageStatusPending,
	}
	var storeID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err, "order not found")
		}
		storeID = order.StoreID

		orderItems, err := repo.FindOrderItems(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
		}
		byID := make(map[uuid.UUID]models.OrderItem, len(orderItems))
		for _, item := range orderItems {
			byID[item.ID] = item
		}

		ids := make([]uuid.UUID, 0, len(requested))
		for _, in := range requested {
			if _, ok := byID[in.OrderItemID]; !ok {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "order item %s does not belong to order", in.OrderItemID)
			}
			ids = append(ids, in.OrderItemID)
		}
		packaged, err := repo.PackagedQuantities(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load packaged quantities")
		}

		rows := make([]models.PackageItem, 0, len(requested))
		for _, in := range requested {
			item := byID[in.OrderItemID]
			if already := packaged[in.OrderItemID]; already > 0 {
				return pkgerrors.Newf(pkgerrors.CodeIntegrity, "order item %s is already in a package", in.OrderItemID)
			}
			if in.Quantity > item.Quantity {
				return pkgerrors.New(pkgerrors.CodeIntegrity,
					fmt.Sprintf("package quantity %d exceeds ordered quantity %d for item %s", in.Quantity, item.Quantity, in.OrderItemID))
			}
			rows = append(rows, models.PackageItem{
				ID:          uuid.New(),
				PackageID:   pkg.ID,
				OrderItemID: in.OrderItemID,
				Quantity:    in.Quantity,
			})
		}

		if err := repo.CreatePackage(ctx, pkg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create package")
		}
		if err := repo.CreateItems(ctx, rows); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "order item is already in a package")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create package items")
		}
		if err := s.RecomputeCounters(ctx, tx, pkg.ID); err != nil {
			return err
		}
		if err := s.orders.RecomputeCounters(ctx, tx, orderID); err != nil {
			return err
		}
		stored, err := repo.FindPackage(ctx, pkg.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload package")
		}
		*pkg = *stored

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPackageCreated,
			AggregateType: enums.AggregateDeliveryPackage,
			AggregateID:   pkg.ID,
			Version:       1,
			Data: payloads.PackageCreatedEvent{
				PackageID:  pkg.ID,
				OrderID:    pkg.OrderID,
				StoreID:    order.StoreID,
				TotalUnits: pkg.TotalUnits,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithStoreID(logCtx, storeID.String())
	s.logg.Info(s.logg.WithField(logCtx, "package_id", pkg.ID.String()), "delivery package created")
	return pkg, nil
}

func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	index := make(map[uuid.UUID]int, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, in := range items {
		if in.OrderItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_item_id is required")
		}
		if in.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if i, ok := index[in.OrderItemID]; ok {
			out[i].Quantity += in.Quantity
			continue
		}
		index[in.OrderItemID] = len(out)
		out = append(out, in)
	}
	return out, nil
}

func (s *service) TransitionStatus(ctx context.Context, packageID uuid.UUID, input TransitionInput) (*models.DeliveryPackage, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid package status")
	}
	var tracking string
	if input.TrackingNumber != nil {
		tracking = strings.TrimSpace(*input.TrackingNumber)
	}

	var (
		pkg      *models.DeliveryPackage
		previous enums.PackageStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindPackageForUpdate(ctx, packageID)
		if err != nil {
			return notFound(err, "package not found")
		}
		previous = locked.Status
		if !locked.Status.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("package cannot move from %s to %s", locked.Status, input.Status))
		}

		now := s.now().UTC()
		updates := map[string]any{"status": input.Status}
		switch input.Status {
		case enums.PackageStatusShipped:
			updates["delivery_out_date"] = now
		case enums.PackageStatusDelivered:
			updates["delivered_date"] = now
		}
		if tracking != "" {
			updates["tracking_number"] = tracking
		}
		if err := repo.UpdatePackage(ctx, packageID, updates); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "tracking number already assigned")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update package status")
		}

		pkg, err = repo.FindPackage(ctx, packageID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload package")
		}
		order, err := repo.FindOrder(ctx, pkg.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		return s.emitTransition(ctx, tx, order, pkg, previous, now)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, pkg.OrderID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"package_id": pkg.ID.String(),
		"from":       previous.String(),
		"to":         pkg.Status.String(),
	}), "delivery package status changed")
	return pkg, nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, pkg *models.DeliveryPackage, previous enums.PackageStatus, at time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPackageStatusChanged,
		AggregateType: enums.AggregateDeliveryPackage,
		AggregateID:   pkg.ID,
		Version:       1,
		OccurredAt:    at,
		Data: payloads.PackageStatusChangedEvent{
			PackageID:      pkg.ID,
			OrderID:        pkg.OrderID,
			StoreID:        order.StoreID,
			PreviousStatus: previous,
			Status:         pkg.Status,
			TrackingNumber: pkg.TrackingNumber,
			ChangedAt:      at,
		},
	})
	if err != nil {
		return err
	}

	var template string
	switch pkg.Status {
	case enums.PackageStatusShipped:
		template = TemplateOutForDelivery
	case enums.PackageStatusDelivered:
		template = TemplateDelivered
	default:
		return nil
	}
	tracking := ""
	if pkg.TrackingNumber != nil {
		tracking = *pkg.TrackingNumber
	}
	orderID := order.ID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Version:       1,
		Data: payloads.NotificationRequestedEvent{
			TemplateName: template,
			Variables:    []string{order.OrderNumber, tracking},
			Recipient:    order.UserID.String(),
			OrderID:      &orderID,
		},
	})
}

// RecordShipment stores the provider's identifiers without emitting events or
// notifications.
func (s *service) RecordShipment(ctx context.Context, packageID uuid.UUID, trackingNumber, providerOrderID string) error {
	updates := map[string]any{}
	if v := strings.TrimSpace(trackingNumber); v != "" {
		updates["tracking_number"] = v
	}
	if v := strings.TrimSpace(providerOrderID); v != "" {
		updates["provider_order_id"] = v
	}
	if len(updates) == 0 {
		return nil
	}
	if _, err := s.repo.FindPackage(ctx, packageID); err != nil {
		return notFound(err, "package not found")
	}
	if err := s.repo.UpdatePackage(ctx, packageID, updates); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "tracking number already assigned")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record shipment")
	}
	return nil
}

// RecomputeCounters rewrites the package counters from its items. It is a
// silent update: no events, no notifications.
func (s *service) RecomputeCounters(ctx context.Context, tx *gorm.DB, packageID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	agg, err := repo.PackageAggregates(ctx, packageID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate package items")
	}
	err = repo.UpdatePackage(ctx, packageID, map[string]any{
		"product_listing_count": agg.Listings,
		"total_units":           agg.Units,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update package counters")
	}
	return nil
}

func (s *service) Get(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error) {
	pkg, err := s.repo.FindPackage(ctx, packageID)
	if err != nil {
		return nil, notFound(err, "package not found")
	}
	return pkg, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
