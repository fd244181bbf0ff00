// Package shipping registers delivery packages with the courier aggregator.
package shipping

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/estore-backend/pkg/shiprocket"
)

// ConsumerName scopes the shipping worker's idempotency keys.
const ConsumerName = "shipping"

type packageStore interface {
	Get(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error)
	RecordShipment(ctx context.Context, packageID uuid.UUID, trackingNumber, providerOrderID string) error
}

type orderLoader interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type shipper interface {
	CreateOrder(ctx context.Context, req shiprocket.OrderRequest) (*shiprocket.OrderResponse, error)
}

// Registrar handles package_created by creating the provider order and storing
// the tracking number it returns. Errors are returned so the message is redelivered.
type Registrar struct {
	packages packageStore
	orders   orderLoader
	shipper  shipper
	logg     *logger.Logger
}

func NewRegistrar(packages packageStore, orders orderLoader, s shipper, logg *logger.Logger) (*Registrar, error) {
	if packages == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	if orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if s == nil {
		return nil, fmt.Errorf("shipping client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Registrar{packages: packages, orders: orders, shipper: s, logg: logg}, nil
}

// Handle implements worker.Handler.
func (r *Registrar) Handle(ctx context.Context, envelope worker.Envelope) error {
	if envelope.EventType != enums.EventPackageCreated {
		return worker.ErrUnsupportedEventType
	}
	var payload payloads.PackageCreatedEvent
	if err := envelope.Decode(&payload); err != nil {
		return fmt.Errorf("decode package_created: %w", err)
	}
	logCtx := r.logg.WithOrderID(ctx, payload.OrderID.String())
	logCtx = r.logg.WithField(logCtx, "package_id", payload.PackageID.String())

	pkg, err := r.packages.Get(ctx, payload.PackageID)
	if err != nil {
		return fmt.Errorf("load package: %w", err)
	}
	if pkg.TrackingNumber != nil && *pkg.TrackingNumber != "" {
		r.logg.Info(logCtx, "package already registered with shipping provider")
		return nil
	}
	order, err := r.orders.Get(ctx, pkg.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	req, err := buildRequest(order, pkg)
	if err != nil {
		return err
	}
	resp, err := r.shipper.CreateOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("create shipping order: %w", err)
	}
	providerOrderID := ""
	if resp.OrderID != 0 {
		providerOrderID = strconv.FormatInt(resp.OrderID, 10)
	}
	if err := r.packages.RecordShipment(ctx, pkg.ID, resp.TrackingNumber(), providerOrderID); err != nil {
		return fmt.Errorf("record shipment: %w", err)
	}
	r.logg.Info(r.logg.WithField(logCtx, "tracking_number", resp.TrackingNumber()), "package registered with shipping provider")
	return nil
}

func buildRequest(order *models.Order, pkg *models.DeliveryPackage) (shiprocket.OrderRequest, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
	}

	req := shiprocket.OrderRequest{
		OrderID:       pkg.ID.String(),
		OrderDate:     order.CreatedAt.UTC().Format("2006-01-02 15:04"),
		PaymentMethod: "COD",
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		req.PaymentMethod = "Prepaid"
	}
	for _, pi := range pkg.Items {
		item, ok := byID[pi.OrderItemID]
		if !ok {
			return req, fmt.Errorf("package item %s not found on order %s", pi.OrderItemID, order.ID)
		}
		price, _ := item.Price.Float64()
		req.Items = append(req.Items, shiprocket.OrderItem{
			Name:         order.OrderNumber + " / " + item.ProductID.String()[:8],
			SKU:          item.ProductID.String(),
			Units:        pi.Quantity,
			SellingPrice: price,
		})
		req.SubTotal += price * float64(pi.Quantity)
	}
	if len(req.Items) == 0 {
		return req, fmt.Errorf("package %s has no items", pkg.ID)
	}
	return req, nil
}
