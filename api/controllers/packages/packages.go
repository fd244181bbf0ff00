package packages

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/api/middleware"
	"github.com/angelmondragon/estore-backend/api/responses"
	"github.com/angelmondragon/estore-backend/api/validators"
	"github.com/angelmondragon/estore-backend/internal/delivery"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

type orderReader interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type packageItemRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"gt=0"`
}

type createPackageRequest struct {
	Items []packageItemRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status         string  `json:"status" validate:"required,oneof=pending processing shipped delivered canceled"`
	TrackingNumber *string `json:"tracking_number"`
}

type packageItemResponse struct {
	ID          uuid.UUID `json:"id"`
	OrderItemID uuid.UUID `json:"order_item_id"`
	Quantity    int       `json:"quantity"`
}

type packageResponse struct {
	ID                  uuid.UUID             `json:"id"`
	OrderID             uuid.UUID             `json:"order_id"`
	Status              string                `json:"status"`
	TrackingNumber      *string               `json:"tracking_number,omitempty"`
	ProductListingCount int                   `json:"product_listing_count"`
	TotalUnits          int                   `json:"total_units"`
	DeliveryOutDate     *time.Time            `json:"delivery_out_date,omitempty"`
	DeliveredDate       *time.Time            `json:"delivered_date,omitempty"`
	Items               []packageItemResponse `json:"items"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func toPackageResponse(p *models.DeliveryPackage) packageResponse {
	out := packageResponse{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		Status:              string(p.Status),
		TrackingNumber:      p.TrackingNumber,
		ProductListingCount: p.ProductListingCount,
		TotalUnits:          p.TotalUnits,
		DeliveryOutDate:     p.DeliveryOutDate,
		DeliveredDate:       p.DeliveredDate,
		Items:               make([]packageItemResponse, 0, len(p.Items)),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	for _, item := range p.Items {
		out.Items = append(out.Items, packageItemResponse{ID: item.ID, OrderItemID: item.OrderItemID, Quantity: item.Quantity})
	}
	return out
}

// CreatePackage handles POST /api/v1/orders/{orderId}/packages.
func CreatePackage(svc delivery.Service, orders orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || orders == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createPackageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrder(r, orders, orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]delivery.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, delivery.ItemInput{OrderItemID: item.OrderItemID, Quantity: item.Quantity})
		}
		pkg, err := svc.CreatePackage(r.Context(), orderID, items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPackageResponse(pkg))
	}
}

// TransitionStatus handles PATCH /api/v1/packages/{packageId}/status.
func TransitionStatus(svc delivery.Service, orders orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || orders == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}
		packageID, err := validators.ParseURLUUID(r, "packageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		current, err := svc.Get(r.Context(), packageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrder(r, orders, current.OrderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := delivery.TransitionInput{Status: enums.PackageStatus(payload.Status)}
		if payload.TrackingNumber != nil {
			if tracking := validators.SanitizeString(*payload.TrackingNumber, 128); tracking != "" {
				input.TrackingNumber = &tracking
			}
		}
		pkg, err := svc.TransitionStatus(r.Context(), packageID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPackageResponse(pkg))
	}
}

// authorizeOrder lets admins through and restricts sellers to their own store.
func authorizeOrder(r *http.Request, orders orderReader, orderID uuid.UUID) error {
	if enums.UserRole(middleware.RoleFromContext(r.Context())) == enums.UserRoleAdmin {
		return nil
	}
	order, err := orders.Get(r.Context(), orderID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(middleware.StoreIDFromContext(r.Context()), order.StoreID.String()) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another store")
	}
	return nil
}
